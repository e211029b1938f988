package actinia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mahirjain10/savana-gateway/internal/types"
)

type resourceBody struct {
	Status string `json:"status"`
	URLs   *struct {
		Resources []string `json:"resources"`
	} `json:"urls"`
	ProcessLog []types.ProcessLogEntry `json:"process_log"`
	Progress   json.RawMessage         `json:"progress"`
	TimeDelta  *float64                `json:"time_delta"`
	Message    *string                 `json:"message"`
}

type stepProgress struct {
	Step       float64 `json:"step"`
	NumOfSteps float64 `json:"num_of_steps"`
}

// ResourceStatus performs exactly one status query for h and classifies it.
//
// A 200 answer yields the full event: the resource list and process log are
// always present (possibly empty), the optional progress fields stay nil
// when not reported. A 400 answer yields the status only, with Resources and
// ProcessLog nil. Any other status is a *TransientOrFatalError.
func (c *Client) ResourceStatus(ctx context.Context, h types.JobHandle) (*types.StatusEvent, error) {
	op := "resource status " + h.ResourceID
	if h.UserID == "" || h.ResourceID == "" {
		return nil, fmt.Errorf("%s: incomplete job handle", op)
	}
	resp, err := c.do(ctx, http.MethodGet, Path("resources", h.UserID, h.ResourceID), nil, nil)
	if err != nil {
		return nil, &TransientOrFatalError{Op: op, Cause: err}
	}
	return classify(op, h, resp)
}

func classify(op string, h types.JobHandle, resp *Response) (*types.StatusEvent, error) {
	switch resp.StatusCode {
	case http.StatusOK:
		var body resourceBody
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, &ParseError{Op: op, Body: string(resp.Body), Cause: err}
		}
		event := &types.StatusEvent{
			Handle:     h,
			Status:     types.ParseStatus(body.Status),
			RawStatus:  body.Status,
			Resources:  []string{},
			ProcessLog: []types.ProcessLogEntry{},
			TimeDelta:  body.TimeDelta,
			Message:    body.Message,
		}
		if body.URLs != nil && body.URLs.Resources != nil {
			event.Resources = body.URLs.Resources
		}
		if body.ProcessLog != nil {
			event.ProcessLog = body.ProcessLog
		}
		event.Progress = parseProgress(body.Progress)
		return event, nil

	case http.StatusBadRequest:
		var body struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, &ParseError{Op: op, Body: string(resp.Body), Cause: err}
		}
		return &types.StatusEvent{
			Handle:    h,
			Status:    types.ParseStatus(body.Status),
			RawStatus: body.Status,
		}, nil

	default:
		return nil, &TransientOrFatalError{Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
}

// parseProgress accepts a percentage or a {step, num_of_steps} object, which
// is turned into a percentage. Jobs that have not started report zero steps
// of zero. Anything it cannot read is treated as not reported.
func parseProgress(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var pct float64
	if err := json.Unmarshal(raw, &pct); err == nil {
		return &pct
	}
	var steps stepProgress
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil
	}
	switch {
	case steps.NumOfSteps > 0:
		pct = steps.Step / steps.NumOfSteps * 100
	case steps.Step == 0:
		pct = 0
	default:
		return nil
	}
	return &pct
}
