package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// ErrRevoked is returned for jobs whose handle was revoked by a client.
var ErrRevoked = errors.New("job handle revoked")

// StatusSource performs one classified status query.
type StatusSource interface {
	ResourceStatus(ctx context.Context, h types.JobHandle) (*types.StatusEvent, error)
}

// Revocations reports revoked job handles.
type Revocations interface {
	IsRevoked(ctx context.Context, resourceID string) (bool, error)
}

// PollRequest names the job to poll and how its events are tagged.
type PollRequest struct {
	Handle  types.JobHandle
	Kind    types.MessageKind
	ModelID string
}

// Poller runs single status polls and hands every classified event to the
// fan-out. It keeps no state between polls.
type Poller struct {
	source      StatusSource
	fanout      *Fanout
	revocations Revocations
	logger      logrus.FieldLogger
}

// NewPoller builds a poller. revocations may be nil.
func NewPoller(source StatusSource, fanout *Fanout, revocations Revocations, logger logrus.FieldLogger) *Poller {
	return &Poller{source: source, fanout: fanout, revocations: revocations, logger: logger}
}

// Poll performs exactly one status query. Classification errors are returned
// without publishing anything; the caller owns any retry.
func (p *Poller) Poll(ctx context.Context, req PollRequest) (*types.StatusEvent, error) {
	if req.Kind == "" {
		req.Kind = types.KindResourceMessage
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown message kind %q", req.Kind)
	}

	entry := p.logger.WithFields(logrus.Fields{
		"user_id":     req.Handle.UserID,
		"resource_id": req.Handle.ResourceID,
		"kind":        req.Kind,
	})

	if p.revocations != nil {
		revoked, err := p.revocations.IsRevoked(ctx, req.Handle.ResourceID)
		if err != nil {
			entry.WithError(err).Warn("revocation lookup failed, polling anyway")
		} else if revoked {
			entry.Info("job revoked, not polling")
			return nil, ErrRevoked
		}
	}

	event, err := p.source.ResourceStatus(ctx, req.Handle)
	if err != nil {
		return nil, err
	}
	event.Kind = req.Kind
	event.ModelID = req.ModelID

	p.fanout.Deliver(ctx, event)
	entry.WithField("status", event.Status).Debug("job polled")
	return event, nil
}

// Fail publishes a terminal error event for a job whose status could not be
// determined, so subscribers are not left waiting.
func (p *Poller) Fail(ctx context.Context, req PollRequest, cause error) *types.StatusEvent {
	if req.Kind == "" {
		req.Kind = types.KindResourceMessage
	}
	msg := cause.Error()
	event := &types.StatusEvent{
		Handle:    req.Handle,
		Kind:      req.Kind,
		ModelID:   req.ModelID,
		Status:    types.StatusError,
		RawStatus: string(types.StatusError),
		Message:   &msg,
	}
	p.fanout.Deliver(ctx, event)
	return event
}
