package types

import "time"

// DrainRequest is the recorded submission of one drain analysis.
type DrainRequest struct {
	ID         string     `json:"id"`
	HUC12      string     `json:"huc12"`
	Lon        float64    `json:"lon"`
	Lat        float64    `json:"lat"`
	Extent     [4]float64 `json:"extent"`
	UserID     string     `json:"user_id"`
	ResourceID string     `json:"resource_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}
