package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no drain request matches.
var ErrNotFound = errors.New("drain request not found")

const schema = `CREATE TABLE IF NOT EXISTS drain_requests (
	id          UUID PRIMARY KEY,
	huc12       CHAR(12) NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	lat         DOUBLE PRECISION NOT NULL,
	extent      DOUBLE PRECISION[4] NOT NULL,
	user_id     TEXT NOT NULL,
	resource_id TEXT NOT NULL UNIQUE,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type DrainRequestRepository interface {
	EnsureSchema(ctx context.Context) error
	Record(ctx context.Context, req types.DrainRequest) error
	MarkStatus(ctx context.Context, resourceID string, status types.Status) error
	GetByResource(ctx context.Context, resourceID string) (*types.DrainRequest, error)
}

type drainRequestRepo struct {
	db  *sql.DB
	log logrus.FieldLogger
}

func NewDrainRequestRepository(db *sql.DB, log logrus.FieldLogger) DrainRequestRepository {
	return &drainRequestRepo{db: db, log: log}
}

func (r *drainRequestRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create drain_requests: %w", err)
	}
	return nil
}

func (r *drainRequestRepo) Record(ctx context.Context, req types.DrainRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO drain_requests (id, huc12, lon, lat, extent, user_id, resource_id, status, created_at)
		 VALUES ($1, $2, $3, $4, ARRAY[$5, $6, $7, $8]::DOUBLE PRECISION[], $9, $10, $11, $12)`,
		req.ID, req.HUC12, req.Lon, req.Lat,
		req.Extent[0], req.Extent[1], req.Extent[2], req.Extent[3],
		req.UserID, req.ResourceID, req.Status, req.CreatedAt,
	)
	if err != nil {
		r.log.WithError(err).WithField("resource_id", req.ResourceID).Error("drain request insert failed")
		return fmt.Errorf("record drain request %s: %w", req.ResourceID, err)
	}
	r.log.WithFields(logrus.Fields{"id": req.ID, "resource_id": req.ResourceID, "huc12": req.HUC12}).Info("drain request recorded")
	return nil
}

// MarkStatus updates the status of the request for resourceID. Jobs not
// started through the drain endpoint have no row and are ignored.
func (r *drainRequestRepo) MarkStatus(ctx context.Context, resourceID string, status types.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE drain_requests SET status = $1, updated_at = now() WHERE resource_id = $2`,
		string(status), resourceID,
	)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", resourceID, status, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.log.WithField("resource_id", resourceID).Debug("no drain request to update")
	}
	return nil
}

func (r *drainRequestRepo) GetByResource(ctx context.Context, resourceID string) (*types.DrainRequest, error) {
	var req types.DrainRequest
	err := r.db.QueryRowContext(ctx,
		`SELECT id, huc12, lon, lat, extent[1], extent[2], extent[3], extent[4], user_id, resource_id, status, created_at
		 FROM drain_requests WHERE resource_id = $1`,
		resourceID,
	).Scan(&req.ID, &req.HUC12, &req.Lon, &req.Lat,
		&req.Extent[0], &req.Extent[1], &req.Extent[2], &req.Extent[3],
		&req.UserID, &req.ResourceID, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get drain request %s: %w", resourceID, err)
	}
	return &req, nil
}
