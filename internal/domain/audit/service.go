package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/infra/eventbus"
	"github.com/zime-ai/nucleus/pkg/uuid"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Service provides append-only audit logging. No updates or deletes.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService creates a new audit service. A nil logger is replaced by a no-op.
func NewService(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

// Record writes one entry.
func (s *Service) Record(ctx context.Context, e Entry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		details = raw
	}
	outcome := e.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_event (id, actor, action, entity_type, entity_id, details, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewV7(), e.Actor, e.Action, nullable(e.EntityType), nullable(e.EntityID),
		string(details), string(outcome), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", e.Action, err)
	}
	return nil
}

// List returns events newest first, with the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_event`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, details, outcome, created_at
		FROM audit_event
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: list: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListByEntity returns the events recorded against one entity, newest first.
func (s *Service) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, details, outcome, created_at
		FROM audit_event
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list by entity: %w", err)
	}
	return scanEvents(rows)
}

// Consume records every Entry published on events until the channel closes
// or ctx is done. Write failures are logged and do not stop the loop.
func (s *Service) Consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			entry, isEntry := evt.Payload.(Entry)
			if !isEntry {
				s.logger.Warn("audit: unexpected payload", zap.String("topic", evt.Topic))
				continue
			}
			if err := s.Record(ctx, entry); err != nil {
				s.logger.Error("audit: record failed", zap.String("action", entry.Action), zap.Error(err))
			}
		}
	}
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			e                    Event
			entityType, entityID sql.NullString
			details, outcome     string
			createdAt            string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &entityType, &entityID, &details, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if entityType.Valid {
			e.EntityType = &entityType.String
		}
		if entityID.Valid {
			e.EntityID = &entityID.String
		}
		e.Details = json.RawMessage(details)
		e.Outcome = Outcome(outcome)
		ts, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("audit: scan created_at: %w", err)
		}
		e.CreatedAt = ts
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
