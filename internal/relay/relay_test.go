package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

type published struct {
	Topic   string
	Payload map[string]any
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (r *recorder) Publish(_ context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	r.msgs = append(r.msgs, published{Topic: topic, Payload: m})
	return nil
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.msgs...)
}

type scriptedSource struct {
	mu     sync.Mutex
	events []*types.StatusEvent
	errs   []error
	calls  int
}

func (s *scriptedSource) ResourceStatus(_ context.Context, h types.JobHandle) (*types.StatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.events) {
		i = len(s.events) - 1
	}
	if s.errs != nil && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	e := *s.events[i]
	e.Handle = h
	return &e, nil
}

type revokedSet map[string]bool

func (r revokedSet) IsRevoked(_ context.Context, id string) (bool, error) {
	return r[id], nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var job = types.JobHandle{UserID: "savana", ResourceID: "resource_id-7c1e"}

func TestTopicIsDeterministic(t *testing.T) {
	if Topic("resource_id-7c1e") != Topic("resource_id-7c1e") {
		t.Fatal("Topic is not deterministic")
	}
	if got := Topic("resource_id-7c1e"); got != "savana_resource_id_7c1e" {
		t.Fatalf("Topic() = %q", got)
	}
}

func TestTopicHyphenUnderscoreCollision(t *testing.T) {
	a, b := Topic("abc-123"), Topic("abc_123")
	if a != b {
		t.Fatalf("Topic(abc-123) = %q, Topic(abc_123) = %q, want the same topic", a, b)
	}
	if a != "savana_abc_123" {
		t.Fatalf("Topic() = %q, want savana_abc_123", a)
	}
}

func TestPayloadResourceMessage(t *testing.T) {
	tests := []struct {
		name  string
		event types.StatusEvent
		want  map[string]any
	}{
		{
			name:  "resources absent",
			event: types.StatusEvent{Handle: job, Status: types.StatusError},
			want:  map[string]any{"type": "resource_message", "message": "error", "resource_id": "resource_id-7c1e"},
		},
		{
			name:  "resources empty",
			event: types.StatusEvent{Handle: job, Status: types.StatusRunning, Resources: []string{}, ProcessLog: []types.ProcessLogEntry{}},
			want: map[string]any{
				"type": "resource_message", "message": "running", "resource_id": "resource_id-7c1e",
				"resources": []any{}, "process_log": []any{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Payload(&tt.event)
			if err != nil {
				t.Fatal(err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPayloadModelSetup(t *testing.T) {
	tests := []struct {
		name  string
		event types.StatusEvent
		want  map[string]any
	}{
		{
			name: "optional scalars absent",
			event: types.StatusEvent{
				Handle: job, Kind: types.KindModelSetup, ModelID: "42", Status: types.StatusRunning,
				Resources: []string{}, ProcessLog: []types.ProcessLogEntry{},
			},
			want: map[string]any{
				"model_id": "42", "type": "model_setup", "status": "running", "resource_id": "resource_id-7c1e",
				"resources": []any{}, "process_log": []any{}, "time_delta": nil, "progress": nil, "active_message": nil,
			},
		},
		{
			name:  "bad request omits lists",
			event: types.StatusEvent{Handle: job, Kind: types.KindModelSetup, ModelID: "42", Status: types.StatusError},
			want: map[string]any{
				"model_id": "42", "type": "model_setup", "status": "error", "resource_id": "resource_id-7c1e",
				"time_delta": nil, "progress": nil, "active_message": nil,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Payload(&tt.event)
			if err != nil {
				t.Fatal(err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPayloadUnknownKind(t *testing.T) {
	if _, err := Payload(&types.StatusEvent{Kind: "bogus"}); err == nil {
		t.Fatal("Payload() error = nil, want error")
	}
}

func TestPollFansOutToJobTopic(t *testing.T) {
	rec := &recorder{}
	src := &scriptedSource{events: []*types.StatusEvent{{Status: types.StatusRunning, Resources: []string{}}}}
	p := NewPoller(src, NewFanout(rec, quietLogger()), nil, quietLogger())

	event, err := p.Poll(context.Background(), PollRequest{Handle: job})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if event.Kind != types.KindResourceMessage {
		t.Fatalf("Kind = %q", event.Kind)
	}
	msgs := rec.all()
	if len(msgs) != 1 || msgs[0].Topic != "savana_resource_id_7c1e" {
		t.Fatalf("published %+v", msgs)
	}
}

func TestPollErrorPublishesNothing(t *testing.T) {
	rec := &recorder{}
	src := &scriptedSource{
		events: []*types.StatusEvent{nil},
		errs:   []error{&actinia.TransientOrFatalError{Op: "status", StatusCode: 502}},
	}
	p := NewPoller(src, NewFanout(rec, quietLogger()), nil, quietLogger())
	_, err := p.Poll(context.Background(), PollRequest{Handle: job})
	var tf *actinia.TransientOrFatalError
	if !errors.As(err, &tf) {
		t.Fatalf("error = %v, want *TransientOrFatalError", err)
	}
	if len(rec.all()) != 0 {
		t.Fatal("nothing should be published on a failed poll")
	}
}

func TestPollSurvivesBusFailure(t *testing.T) {
	rec := &recorder{err: errors.New("bus down")}
	src := &scriptedSource{events: []*types.StatusEvent{{Status: types.StatusFinished, Resources: []string{}}}}
	p := NewPoller(src, NewFanout(rec, quietLogger()), nil, quietLogger())
	if _, err := p.Poll(context.Background(), PollRequest{Handle: job}); err != nil {
		t.Fatalf("Poll() error = %v, want nil when the bus fails", err)
	}
}

func TestPollRevokedHandle(t *testing.T) {
	rec := &recorder{}
	src := &scriptedSource{events: []*types.StatusEvent{{Status: types.StatusRunning}}}
	p := NewPoller(src, NewFanout(rec, quietLogger()), revokedSet{job.ResourceID: true}, quietLogger())
	if _, err := p.Poll(context.Background(), PollRequest{Handle: job}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("error = %v, want ErrRevoked", err)
	}
	if src.calls != 0 {
		t.Fatal("engine should not be polled for a revoked job")
	}
}

func TestDuplicateDeliveryOnlyDuplicatesTheMessage(t *testing.T) {
	rec := &recorder{}
	f := NewFanout(rec, quietLogger())
	event := &types.StatusEvent{Handle: job, Status: types.StatusFinished, Resources: []string{"https://store.example/basin.tif"}, ProcessLog: []types.ProcessLogEntry{}}
	before := *event

	f.Deliver(context.Background(), event)
	f.Deliver(context.Background(), event)

	msgs := rec.all()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if diff := cmp.Diff(msgs[0], msgs[1]); diff != "" {
		t.Fatalf("duplicate deliveries differ:\n%s", diff)
	}
	if diff := cmp.Diff(before, *event); diff != "" {
		t.Fatalf("event mutated by delivery:\n%s", diff)
	}
}

func TestFailPublishesTerminalError(t *testing.T) {
	rec := &recorder{}
	p := NewPoller(&scriptedSource{}, NewFanout(rec, quietLogger()), nil, quietLogger())
	event := p.Fail(context.Background(), PollRequest{Handle: job, Kind: types.KindModelSetup, ModelID: "9"}, errors.New("engine unreachable"))
	if event.Status != types.StatusError {
		t.Fatalf("Status = %q", event.Status)
	}
	msgs := rec.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	if msgs[0].Payload["status"] != "error" || msgs[0].Payload["active_message"] != "engine unreachable" || msgs[0].Payload["model_id"] != "9" {
		t.Fatalf("payload = %v", msgs[0].Payload)
	}
}

func fastPolicy(attempts int) WaitPolicy {
	return WaitPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxWait: 5 * time.Second, MaxAttempts: attempts}
}

func TestWaitReturnsTerminalEvent(t *testing.T) {
	rec := &recorder{}
	src := &scriptedSource{events: []*types.StatusEvent{
		{Status: types.StatusAccepted, Resources: []string{}},
		{Status: types.StatusRunning, Resources: []string{}},
		{Status: types.StatusFinished, Resources: []string{"https://store.example/basin.tif"}},
	}}
	w := NewWaiter(NewPoller(src, NewFanout(rec, quietLogger()), nil, quietLogger()), fastPolicy(10), quietLogger())

	event, err := w.Wait(context.Background(), PollRequest{Handle: job})
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if event.Status != types.StatusFinished || src.calls != 3 {
		t.Fatalf("Wait() = %v after %d polls", event.Status, src.calls)
	}
	if len(rec.all()) != 3 {
		t.Fatalf("published %d events, want one per poll", len(rec.all()))
	}
}

func TestWaitTimesOut(t *testing.T) {
	src := &scriptedSource{events: []*types.StatusEvent{{Status: types.StatusRunning, Resources: []string{}}}}
	w := NewWaiter(NewPoller(src, NewFanout(&recorder{}, quietLogger()), nil, quietLogger()), fastPolicy(4), quietLogger())

	last, err := w.Wait(context.Background(), PollRequest{Handle: job})
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("error = %v, want ErrPollTimeout", err)
	}
	if last == nil || last.Status != types.StatusRunning {
		t.Fatalf("last = %+v, want last running event", last)
	}
	if src.calls != 4 {
		t.Fatalf("polls = %d, want 4", src.calls)
	}
}

func TestWaitRetriesTransientFailures(t *testing.T) {
	src := &scriptedSource{
		events: []*types.StatusEvent{nil, {Status: types.StatusFinished, Resources: []string{}}},
		errs:   []error{&actinia.TransientOrFatalError{Op: "status", StatusCode: 503}, nil},
	}
	w := NewWaiter(NewPoller(src, NewFanout(&recorder{}, quietLogger()), nil, quietLogger()), fastPolicy(5), quietLogger())
	event, err := w.Wait(context.Background(), PollRequest{Handle: job})
	if err != nil || event.Status != types.StatusFinished {
		t.Fatalf("Wait() = %v, %v", event, err)
	}
}

func TestWaitStopsOnFatalFailure(t *testing.T) {
	src := &scriptedSource{
		events: []*types.StatusEvent{nil},
		errs:   []error{&actinia.TransientOrFatalError{Op: "status", StatusCode: 404}},
	}
	w := NewWaiter(NewPoller(src, NewFanout(&recorder{}, quietLogger()), nil, quietLogger()), fastPolicy(5), quietLogger())
	_, err := w.Wait(context.Background(), PollRequest{Handle: job})
	var tf *actinia.TransientOrFatalError
	if !errors.As(err, &tf) || tf.StatusCode != 404 {
		t.Fatalf("error = %v, want 404 TransientOrFatalError", err)
	}
	if errors.Is(err, ErrPollTimeout) {
		t.Fatal("fatal failure reported as timeout")
	}
	if src.calls != 1 {
		t.Fatalf("polls = %d, want 1", src.calls)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	src := &scriptedSource{events: []*types.StatusEvent{{Status: types.StatusRunning, Resources: []string{}}}}
	policy := WaitPolicy{InitialInterval: time.Hour, MaxInterval: time.Hour, MaxWait: 2 * time.Hour}
	w := NewWaiter(NewPoller(src, NewFanout(&recorder{}, quietLogger()), nil, quietLogger()), policy, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Wait(ctx, PollRequest{Handle: job})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestWaitPolicyDelayGrowsAndCaps(t *testing.T) {
	p := WaitPolicy{InitialInterval: time.Second, MaxInterval: 8 * time.Second}
	first := p.Delay(0)
	if first < 800*time.Millisecond || first > 1200*time.Millisecond {
		t.Fatalf("Delay(0) = %v, want about 1s", first)
	}
	if d := p.Delay(10); d > 8*time.Second*12/10 || d < 8*time.Second*8/10 {
		t.Fatalf("Delay(10) = %v, want about the 8s cap", d)
	}
	if !(WaitPolicy{MaxAttempts: 3}).Exhausted(3) || (WaitPolicy{MaxAttempts: 3}).Exhausted(2) {
		t.Fatal("Exhausted() boundary wrong")
	}
	if (WaitPolicy{}).Exhausted(1000) {
		t.Fatal("zero MaxAttempts means unbounded")
	}
}
