package actinia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mahirjain10/savana-gateway/internal/types"
)

// Template fetches a stored process chain template and returns its chain.
func (c *Client) Template(ctx context.Context, id string) (json.RawMessage, error) {
	op := "template " + id
	resp, err := c.do(ctx, http.MethodGet, Path("actinia_templates", id), nil, nil)
	if err != nil {
		return nil, &TransientOrFatalError{Op: op, Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransientOrFatalError{Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var body struct {
		Template json.RawMessage `json:"template"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &ParseError{Op: op, Body: string(resp.Body), Cause: err}
	}
	if len(body.Template) == 0 || string(body.Template) == "null" {
		return nil, &ParseError{Op: op, Body: string(resp.Body), Cause: errors.New("template missing")}
	}
	return body.Template, nil
}

// Locations lists the engine's GRASS locations.
func (c *Client) Locations(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Forward(ctx, http.MethodGet, Path("locations"), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransientOrFatalError{Op: "locations", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if !json.Valid(resp.Body) {
		return nil, &ParseError{Op: "locations", Body: string(resp.Body), Cause: errors.New("invalid json")}
	}
	return resp.Body, nil
}

// ExportGeoTIFF starts an asynchronous GeoTIFF export of a raster layer.
func (c *Client) ExportGeoTIFF(ctx context.Context, location, mapset, raster string) (*Submission, error) {
	path := Path("locations", location, "mapsets", mapset, "raster_layers", raster) + "/geotiff_async_orig"
	resp, err := c.do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return nil, &SubmissionFailed{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SubmissionFailed{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var body submissionBody
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.ResourceID == "" || body.UserID == "" {
		if err == nil {
			err = fmt.Errorf("user_id or resource_id missing")
		}
		return nil, &SubmissionFailed{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Cause:      &ParseError{Op: "geotiff export", Body: string(resp.Body), Cause: err},
		}
	}
	return &Submission{
		Handle: types.JobHandle{UserID: body.UserID, ResourceID: body.ResourceID},
		Status: body.Status,
	}, nil
}
