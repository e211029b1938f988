package types

import "encoding/json"

// Task patterns carried in the queue envelope.
const (
	PatternResourceStatus = "resource_status"
	PatternModelIngest    = "model_ingest"
)

// RabbitMQMessage is the envelope of every task on the work queues.
type RabbitMQMessage struct {
	Pattern   string          `json:"pattern"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// ResourceStatusTask asks a worker to poll one job once.
type ResourceStatusTask struct {
	UserID     string      `json:"user_id"`
	ResourceID string      `json:"resource_id"`
	Kind       MessageKind `json:"kind"`
	ModelID    string      `json:"model_id,omitempty"`
	Attempt    int         `json:"attempt"`
}

func (t ResourceStatusTask) Handle() JobHandle {
	return JobHandle{UserID: t.UserID, ResourceID: t.ResourceID}
}

// ModelIngestTask asks a worker to submit the model setup chain for a model.
type ModelIngestTask struct {
	ModelID  string   `json:"model_id"`
	Location string   `json:"location"`
	GeoIDs   []string `json:"geoids"`
}
