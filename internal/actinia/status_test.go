package actinia

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mahirjain10/savana-gateway/internal/types"
)

func statusServer(t *testing.T, code int, body string) *Client {
	t.Helper()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/resources/savana/resource_id-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	return c
}

var handle = types.JobHandle{UserID: "savana", ResourceID: "resource_id-1"}

func TestResourceStatusFinished(t *testing.T) {
	c := statusServer(t, http.StatusOK, `{
		"status":"finished",
		"urls":{"resources":["https://store.example/basin.tif"],"status":"https://engine/resources/savana/resource_id-1"},
		"process_log":[{"executable":"r.watershed","id":"r.watershed_usgs_3dep_30","parameter":["elevation=usgs_3dep_30m"],"return_code":0,"run_time":2.5,"stderr":[""],"stdout":""}],
		"progress":{"step":34,"num_of_steps":34},
		"time_delta":120.5,
		"message":"Processing successfully finished"
	}`)
	event, err := c.ResourceStatus(context.Background(), handle)
	if err != nil {
		t.Fatalf("ResourceStatus() error = %v", err)
	}
	if event.Status != types.StatusFinished {
		t.Fatalf("Status = %q", event.Status)
	}
	if diff := cmp.Diff([]string{"https://store.example/basin.tif"}, event.Resources); diff != "" {
		t.Fatalf("Resources mismatch (-want +got):\n%s", diff)
	}
	if len(event.ProcessLog) != 1 || event.ProcessLog[0].Executable != "r.watershed" {
		t.Fatalf("ProcessLog = %+v", event.ProcessLog)
	}
	if event.Progress == nil || *event.Progress != 100 {
		t.Fatalf("Progress = %v, want 100", event.Progress)
	}
	if event.TimeDelta == nil || *event.TimeDelta != 120.5 {
		t.Fatalf("TimeDelta = %v", event.TimeDelta)
	}
	if event.Message == nil || *event.Message != "Processing successfully finished" {
		t.Fatalf("Message = %v", event.Message)
	}
	if event.Handle != handle {
		t.Fatalf("Handle = %+v", event.Handle)
	}
}

func TestResourceStatusOptionalFieldsAbsent(t *testing.T) {
	c := statusServer(t, http.StatusOK, `{"status":"running"}`)
	event, err := c.ResourceStatus(context.Background(), handle)
	if err != nil {
		t.Fatalf("ResourceStatus() error = %v", err)
	}
	if event.Status != types.StatusRunning {
		t.Fatalf("Status = %q", event.Status)
	}
	if event.ProcessLog == nil || len(event.ProcessLog) != 0 {
		t.Fatalf("ProcessLog = %#v, want empty non-nil", event.ProcessLog)
	}
	if !event.HasResources() || len(event.Resources) != 0 {
		t.Fatalf("Resources = %#v, want empty non-nil", event.Resources)
	}
	if event.Progress != nil || event.TimeDelta != nil || event.Message != nil {
		t.Fatalf("optional fields should be absent: %+v", event)
	}
}

func TestResourceStatusZeroIsNotAbsent(t *testing.T) {
	c := statusServer(t, http.StatusOK, `{"status":"accepted","progress":0,"time_delta":0}`)
	event, err := c.ResourceStatus(context.Background(), handle)
	if err != nil {
		t.Fatal(err)
	}
	if event.Progress == nil || *event.Progress != 0 || event.TimeDelta == nil || *event.TimeDelta != 0 {
		t.Fatalf("zero values lost: progress=%v time_delta=%v", event.Progress, event.TimeDelta)
	}
}

func TestResourceStatusBadRequestOmitsResources(t *testing.T) {
	c := statusServer(t, http.StatusBadRequest, `{"status":"error","message":"AsyncProcessError","urls":{"resources":["x"]}}`)
	event, err := c.ResourceStatus(context.Background(), handle)
	if err != nil {
		t.Fatalf("ResourceStatus() error = %v", err)
	}
	if event.Status != types.StatusError || event.RawStatus != "error" {
		t.Fatalf("Status = %q (%q)", event.Status, event.RawStatus)
	}
	if event.HasResources() {
		t.Fatalf("Resources = %#v, want absent", event.Resources)
	}
	if event.ProcessLog != nil {
		t.Fatalf("ProcessLog = %#v, want absent", event.ProcessLog)
	}
}

func TestResourceStatusOtherCodes(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusAccepted, false},
	}
	for _, tt := range tests {
		c := statusServer(t, tt.code, `{"status":"whatever"}`)
		_, err := c.ResourceStatus(context.Background(), handle)
		var tf *TransientOrFatalError
		if !errors.As(err, &tf) {
			t.Fatalf("code %d: error = %v, want *TransientOrFatalError", tt.code, err)
		}
		if tf.StatusCode != tt.code || tf.Retryable() != tt.retryable {
			t.Fatalf("code %d: got status %d retryable %v", tt.code, tf.StatusCode, tf.Retryable())
		}
	}
}

func TestResourceStatusUnparsableBody(t *testing.T) {
	c := statusServer(t, http.StatusOK, `not json`)
	_, err := c.ResourceStatus(context.Background(), handle)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{raw: ``},
		{raw: `null`},
		{raw: `42.5`, want: ptr(42.5)},
		{raw: `{"step":1,"num_of_steps":4}`, want: ptr(25)},
		{raw: `{"step":0,"num_of_steps":0}`, want: ptr(0)},
		{raw: `{"step":1,"num_of_steps":0}`},
		{raw: `"half"`},
		{raw: `[1,2]`},
	}
	for _, tt := range tests {
		got := parseProgress([]byte(tt.raw))
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseProgress(%s) mismatch (-want +got):\n%s", tt.raw, diff)
		}
	}
}

func TestResourceStatusAcceptedNotStarted(t *testing.T) {
	c := statusServer(t, http.StatusOK, `{
		"status":"accepted",
		"progress":{"num_of_steps":0,"step":0},
		"message":"Resource accepted",
		"urls":{"resources":[],"status":"https://engine/resources/savana/resource_id-1"}
	}`)
	event, err := c.ResourceStatus(context.Background(), handle)
	if err != nil {
		t.Fatalf("ResourceStatus() error = %v", err)
	}
	if event.Status != types.StatusAccepted || event.Status.Terminal() {
		t.Fatalf("Status = %q, want non-terminal accepted", event.Status)
	}
	if event.Progress == nil || *event.Progress != 0 {
		t.Fatalf("Progress = %v, want 0", event.Progress)
	}
}

func TestResourceStatusMalformedProgressIsAbsent(t *testing.T) {
	c := statusServer(t, http.StatusOK, `{"status":"running","progress":"soon"}`)
	event, err := c.ResourceStatus(context.Background(), handle)
	if err != nil {
		t.Fatalf("ResourceStatus() error = %v", err)
	}
	if event.Status != types.StatusRunning || event.Progress != nil {
		t.Fatalf("event = %+v, want running with no progress", event)
	}
}

func ptr(f float64) *float64 { return &f }
