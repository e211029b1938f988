package actinia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// Submission is the engine's synchronous acknowledgment of a chain.
type Submission struct {
	Handle types.JobHandle
	Status string
}

type submissionBody struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Status     string `json:"status"`
}

// SubmitPath returns the async processing route for target.
func SubmitPath(target types.Target) string {
	if target.Mapset == "" {
		return Path("locations", target.Location) + "/processing_async_export"
	}
	return Path("locations", target.Location, "mapsets", target.Mapset) + "/processing_async"
}

// Submit posts a process chain for asynchronous execution. chain is any
// JSON-encodable chain description. The call is never retried here since the
// engine does not deduplicate submissions.
func (c *Client) Submit(ctx context.Context, target types.Target, chain any) (*Submission, error) {
	if target.Location == "" {
		return nil, &SubmissionFailed{Cause: errors.New("target location is empty")}
	}
	resp, err := c.do(ctx, http.MethodPost, SubmitPath(target), nil, chain)
	if err != nil {
		return nil, &SubmissionFailed{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SubmissionFailed{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var body submissionBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &SubmissionFailed{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Cause:      &ParseError{Op: "submit", Body: string(resp.Body), Cause: err},
		}
	}
	if body.UserID == "" || body.ResourceID == "" {
		return nil, &SubmissionFailed{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Cause:      &ParseError{Op: "submit", Body: string(resp.Body), Cause: errors.New("user_id or resource_id missing")},
		}
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":     body.UserID,
		"resource_id": body.ResourceID,
		"status":      body.Status,
	}).Info("process chain submitted")

	return &Submission{
		Handle: types.JobHandle{UserID: body.UserID, ResourceID: body.ResourceID},
		Status: body.Status,
	}, nil
}
