package relay

import (
	"encoding/json"
	"fmt"

	"github.com/mahirjain10/savana-gateway/internal/types"
)

// ResourceMessage is the payload for plain job subscribers. Resources and
// ProcessLog are omitted when the poll did not report them, and are empty
// lists when it reported none.
type ResourceMessage struct {
	Type          types.MessageKind        `json:"type"`
	Message       string                   `json:"message"`
	ResourceID    string                   `json:"resource_id"`
	Resources     *[]string                `json:"resources,omitempty"`
	ProcessLog    *[]types.ProcessLogEntry `json:"process_log,omitempty"`
	ActiveMessage *string                  `json:"active_message,omitempty"`
}

// ModelSetupMessage is the payload for model setup subscribers. Absent
// scalar values are sent as null. Resources and ProcessLog follow the
// ResourceMessage rule.
type ModelSetupMessage struct {
	ModelID       string                   `json:"model_id"`
	Type          types.MessageKind        `json:"type"`
	Status        string                   `json:"status"`
	ResourceID    string                   `json:"resource_id"`
	Resources     *[]string                `json:"resources,omitempty"`
	ProcessLog    *[]types.ProcessLogEntry `json:"process_log,omitempty"`
	TimeDelta     *float64                 `json:"time_delta"`
	Progress      *float64                 `json:"progress"`
	ActiveMessage *string                  `json:"active_message"`
}

// Payload encodes the subscriber message for event according to its kind.
func Payload(event *types.StatusEvent) ([]byte, error) {
	switch event.Kind {
	case types.KindModelSetup:
		msg := ModelSetupMessage{
			ModelID:       event.ModelID,
			Type:          event.Kind,
			Status:        string(event.Status),
			ResourceID:    event.Handle.ResourceID,
			TimeDelta:     event.TimeDelta,
			Progress:      event.Progress,
			ActiveMessage: event.Message,
		}
		if event.Resources != nil {
			msg.Resources = &event.Resources
		}
		if event.ProcessLog != nil {
			msg.ProcessLog = &event.ProcessLog
		}
		return json.Marshal(msg)
	case types.KindResourceMessage, "":
		msg := ResourceMessage{
			Type:          types.KindResourceMessage,
			Message:       string(event.Status),
			ResourceID:    event.Handle.ResourceID,
			ActiveMessage: event.Message,
		}
		if event.Resources != nil {
			msg.Resources = &event.Resources
		}
		if event.ProcessLog != nil {
			msg.ProcessLog = &event.ProcessLog
		}
		return json.Marshal(msg)
	default:
		return nil, fmt.Errorf("unknown message kind %q", event.Kind)
	}
}
