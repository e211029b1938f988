package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/queue/models"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixedSource struct {
	event *types.StatusEvent
	err   error
}

func (s fixedSource) ResourceStatus(_ context.Context, h types.JobHandle) (*types.StatusEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	e := *s.event
	e.Handle = h
	return &e, nil
}

type topics struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (t *topics) Publish(_ context.Context, _ string, payload []byte) error {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	t.mu.Lock()
	t.payloads = append(t.payloads, m)
	t.mu.Unlock()
	return nil
}

type scheduled struct {
	task  types.ResourceStatusTask
	delay time.Duration
}

type fakeScheduler struct {
	enqueued  []types.ResourceStatusTask
	scheduled []scheduled
	err       error
}

func (f *fakeScheduler) EnqueueStatus(_ context.Context, task types.ResourceStatusTask) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, task)
	return nil
}

func (f *fakeScheduler) ScheduleStatus(_ context.Context, task types.ResourceStatusTask, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, scheduled{task: task, delay: delay})
	return nil
}

type fakeRecorder map[string]types.Status

func (f fakeRecorder) MarkStatus(_ context.Context, id string, status types.Status) error {
	f[id] = status
	return nil
}

type fakeArchiver struct{ events []*types.StatusEvent }

func (f *fakeArchiver) ArchiveEvent(_ context.Context, event *types.StatusEvent) (string, error) {
	f.events = append(f.events, event)
	return "events/" + event.Handle.ResourceID + ".json", nil
}

var testPolicy = relay.WaitPolicy{
	InitialInterval: time.Second,
	MaxInterval:     4 * time.Second,
	MaxWait:         time.Minute,
	MaxAttempts:     3,
}

type statusFixture struct {
	handler   *ResourceStatusHandler
	scheduler *fakeScheduler
	bus       *topics
	recorder  fakeRecorder
	archiver  *fakeArchiver
}

func newStatusFixture(source relay.StatusSource) *statusFixture {
	f := &statusFixture{
		scheduler: &fakeScheduler{},
		bus:       &topics{},
		recorder:  fakeRecorder{},
		archiver:  &fakeArchiver{},
	}
	logger := quietLogger()
	poller := relay.NewPoller(source, relay.NewFanout(f.bus, logger), nil, logger)
	f.handler = NewResourceStatusHandler(poller, f.scheduler, testPolicy, f.recorder, f.archiver, logger)
	return f
}

func task(attempt int) types.ResourceStatusTask {
	return types.ResourceStatusTask{UserID: "u1", ResourceID: "resource_id-1", Kind: types.KindResourceMessage, Attempt: attempt}
}

func TestStatusRunningReschedules(t *testing.T) {
	f := newStatusFixture(fixedSource{event: &types.StatusEvent{Status: types.StatusRunning}})

	if err := f.handler.Handle(context.Background(), task(0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(f.scheduler.scheduled) != 1 {
		t.Fatalf("scheduled %d polls, want 1", len(f.scheduler.scheduled))
	}
	next := f.scheduler.scheduled[0]
	if next.task.Attempt != 1 || next.delay <= 0 {
		t.Fatalf("next poll = %+v", next)
	}
	if len(f.bus.payloads) != 1 || f.bus.payloads[0]["message"] != "running" {
		t.Fatalf("published %v", f.bus.payloads)
	}
	if len(f.recorder) != 0 {
		t.Fatal("running status should not be recorded as final")
	}
}

func TestStatusFinishedRecordsAndArchives(t *testing.T) {
	f := newStatusFixture(fixedSource{event: &types.StatusEvent{Status: types.StatusFinished, Resources: []string{}}})

	if err := f.handler.Handle(context.Background(), task(2)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(f.scheduler.scheduled) != 0 {
		t.Fatal("terminal status should not be rescheduled")
	}
	if f.recorder["resource_id-1"] != types.StatusFinished || len(f.archiver.events) != 1 {
		t.Fatalf("recorder = %v, archived = %d", f.recorder, len(f.archiver.events))
	}
}

func TestStatusBudgetExhaustedPublishesError(t *testing.T) {
	f := newStatusFixture(fixedSource{event: &types.StatusEvent{Status: types.StatusRunning}})

	err := f.handler.Handle(context.Background(), task(testPolicy.MaxAttempts-1))
	var procErr models.ProcessingError
	if !errors.As(err, &procErr) || procErr.Requeue {
		t.Fatalf("Handle() error = %v, want dropped", err)
	}
	if !errors.Is(err, relay.ErrPollTimeout) {
		t.Fatalf("Handle() error = %v, want ErrPollTimeout", err)
	}
	last := f.bus.payloads[len(f.bus.payloads)-1]
	if last["message"] != "error" {
		t.Fatalf("last event = %v", last)
	}
	if f.recorder["resource_id-1"] != types.StatusError {
		t.Fatalf("recorder = %v", f.recorder)
	}
}

func TestStatusAcceptedJobFromEngineReschedules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"accepted","progress":{"num_of_steps":0,"step":0},"message":"Resource accepted","urls":{"resources":[]}}`))
	}))
	t.Cleanup(srv.Close)
	engine, err := actinia.NewClient(actinia.Config{BaseURL: srv.URL + "/api/v3", User: "u", Password: "p", Timeout: time.Second}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	f := newStatusFixture(engine)

	if err := f.handler.Handle(context.Background(), task(0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(f.scheduler.scheduled) != 1 {
		t.Fatalf("scheduled %d polls, want 1", len(f.scheduler.scheduled))
	}
	if len(f.bus.payloads) != 1 || f.bus.payloads[0]["message"] != "accepted" {
		t.Fatalf("published %v", f.bus.payloads)
	}
	if len(f.recorder) != 0 {
		t.Fatalf("recorder = %v, want nothing recorded", f.recorder)
	}
}

func TestStatusTransientErrorReschedules(t *testing.T) {
	f := newStatusFixture(fixedSource{err: &actinia.TransientOrFatalError{Op: "status", StatusCode: 503}})

	if err := f.handler.Handle(context.Background(), task(0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(f.scheduler.scheduled) != 1 || len(f.bus.payloads) != 0 {
		t.Fatalf("scheduled = %d, published = %d", len(f.scheduler.scheduled), len(f.bus.payloads))
	}
}

func TestStatusFatalErrorDrops(t *testing.T) {
	f := newStatusFixture(fixedSource{err: &actinia.TransientOrFatalError{Op: "status", StatusCode: 404}})

	err := f.handler.Handle(context.Background(), task(0))
	var procErr models.ProcessingError
	if !errors.As(err, &procErr) || procErr.Requeue {
		t.Fatalf("Handle() error = %v, want dropped", err)
	}
	if len(f.bus.payloads) != 1 || f.bus.payloads[0]["message"] != "error" {
		t.Fatalf("published %v", f.bus.payloads)
	}
}

func TestStatusRescheduleFailureRequeues(t *testing.T) {
	f := newStatusFixture(fixedSource{event: &types.StatusEvent{Status: types.StatusAccepted}})
	f.scheduler.err = errors.New("connection closed")

	err := f.handler.Handle(context.Background(), task(0))
	var procErr models.ProcessingError
	if !errors.As(err, &procErr) || !procErr.Requeue {
		t.Fatalf("Handle() error = %v, want requeue", err)
	}
}

func TestStatusRejectsTaskWithoutHandle(t *testing.T) {
	f := newStatusFixture(fixedSource{event: &types.StatusEvent{Status: types.StatusRunning}})
	err := f.handler.Handle(context.Background(), types.ResourceStatusTask{ResourceID: "r"})
	var procErr models.ProcessingError
	if !errors.As(err, &procErr) || procErr.Requeue {
		t.Fatalf("Handle() error = %v, want dropped", err)
	}
}

type fakeEngine struct {
	template    json.RawMessage
	templateErr error
	submitted   []types.Target
	chains      []any
	submitErr   error
}

func (e *fakeEngine) Template(context.Context, string) (json.RawMessage, error) {
	return e.template, e.templateErr
}

func (e *fakeEngine) Submit(_ context.Context, target types.Target, chain any) (*actinia.Submission, error) {
	if e.submitErr != nil {
		return nil, e.submitErr
	}
	e.submitted = append(e.submitted, target)
	e.chains = append(e.chains, chain)
	return &actinia.Submission{
		Handle: types.JobHandle{UserID: "actinia-gdi", ResourceID: "resource_id-model"},
		Status: string(types.StatusAccepted),
	}, nil
}

const modelTemplate = `{"list":[{"id":"a","module":"g.region","inputs":[]},{"id":"b","module":"v.extract","inputs":[{"param":"input","value":"huc"},{"param":"where","value":""},{"param":"geoids","value":""}]}],"version":"1"}`

func TestModelIngestSubmitsAndQueuesPoll(t *testing.T) {
	engine := &fakeEngine{template: json.RawMessage(modelTemplate)}
	scheduler := &fakeScheduler{}
	h := NewModelIngestHandler(engine, scheduler, "tpl", quietLogger())

	err := h.Handle(context.Background(), types.ModelIngestTask{ModelID: "m-7", Location: "CONUS", GeoIDs: []string{"010100020101"}})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(engine.submitted) != 1 || engine.submitted[0] != (types.Target{Location: "CONUS", Mapset: "PERMANENT"}) {
		t.Fatalf("submitted = %v", engine.submitted)
	}
	if len(scheduler.enqueued) != 1 {
		t.Fatalf("enqueued %d polls", len(scheduler.enqueued))
	}
	poll := scheduler.enqueued[0]
	if poll.Kind != types.KindModelSetup || poll.ModelID != "m-7" || poll.ResourceID != "resource_id-model" {
		t.Fatalf("poll = %+v", poll)
	}
}

func TestModelIngestTemplateErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{"transient", &actinia.TransientOrFatalError{Op: "template", StatusCode: 502}, true},
		{"fatal", &actinia.TransientOrFatalError{Op: "template", StatusCode: 404}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewModelIngestHandler(&fakeEngine{templateErr: tt.err}, &fakeScheduler{}, "tpl", quietLogger())
			err := h.Handle(context.Background(), types.ModelIngestTask{ModelID: "m", Location: "CONUS", GeoIDs: []string{"1"}})
			var procErr models.ProcessingError
			if !errors.As(err, &procErr) || procErr.Requeue != tt.requeue {
				t.Fatalf("Handle() error = %v, want requeue=%v", err, tt.requeue)
			}
		})
	}
}

func TestModelIngestRejectsIncompleteTask(t *testing.T) {
	h := NewModelIngestHandler(&fakeEngine{}, &fakeScheduler{}, "tpl", quietLogger())
	err := h.Handle(context.Background(), types.ModelIngestTask{ModelID: "m"})
	var procErr models.ProcessingError
	if !errors.As(err, &procErr) || procErr.Requeue {
		t.Fatalf("Handle() error = %v, want dropped", err)
	}
}
