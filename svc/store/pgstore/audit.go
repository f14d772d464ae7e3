package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/pg"
)

const insertAuditEvent = `
INSERT INTO audit_events (id, action, resource, resource_id, user_id, result, error, request_id, ip, user_agent, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Store implements audit.Storage. Events are written in one batch.
func (s *Store) Store(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range events {
			metadata := e.Metadata
			if metadata == nil {
				metadata = map[string]any{}
			}
			batch.Queue(insertAuditEvent,
				e.ID, e.Action, e.Resource, e.ResourceID, e.UserID, string(e.Result),
				e.Error, e.RequestID, e.IP, e.UserAgent, metadata, e.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
