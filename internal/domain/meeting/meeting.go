// Package meeting manages meeting artifacts: the registered recording, its
// transcript, speaker display names and duration.
package meeting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	"github.com/zime-ai/nucleus/internal/infra/eventbus"
	"github.com/zime-ai/nucleus/internal/infra/sqlite"
	"github.com/zime-ai/nucleus/pkg/uuid"
)

var (
	ErrNotFound        = errors.New("meeting not found")
	ErrSpeakerNotFound = errors.New("speaker not found")
	ErrInvalidInput    = errors.New("invalid meeting input")
)

// TopicUpdated is published after every successful mutation.
const TopicUpdated = "meeting.updated"

const entityType = "meeting"

// Meeting is a registered meeting recording.
type Meeting struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	StorageRef      string     `json:"storageRef"`
	Transcript      string     `json:"transcript"`
	DurationSeconds int        `json:"durationSeconds"`
	Speakers        []*Speaker `json:"speakers"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Speaker maps a diarization label ("Speaker 1") to a display name.
type Speaker struct {
	Label       string `json:"label"`
	DisplayName string `json:"displayName"`
}

// UpdatedEvent is the payload published on TopicUpdated.
type UpdatedEvent struct {
	MeetingID string
	Field     string
	Actor     string
}

type CreateInput struct {
	Title           string
	StorageRef      string
	DurationSeconds int
	Speakers        []string
	CreatedBy       string
}

type ListInput struct {
	Limit  int
	Offset int
}

type Service struct {
	db  *sql.DB
	bus eventbus.Publisher
}

// NewService returns a meeting service. bus may be nil.
func NewService(db *sql.DB, bus eventbus.Publisher) *Service {
	return &Service{db: db, bus: bus}
}

// Create registers a meeting and its initial speakers. Speakers start with
// their label as display name.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Meeting, error) {
	title := strings.TrimSpace(input.Title)
	ref := strings.TrimSpace(input.StorageRef)
	if title == "" || ref == "" {
		return nil, fmt.Errorf("%w: title and storageRef are required", ErrInvalidInput)
	}
	if input.DurationSeconds < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", ErrInvalidInput)
	}

	id := uuid.NewV7()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create meeting: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meeting (id, title, storage_ref, duration_seconds, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, title, ref, input.DurationSeconds, input.CreatedBy, now, now)
	if err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}

	for _, label := range input.Speakers {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("%w: empty speaker label", ErrInvalidInput)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO meeting_speaker (meeting_id, label, display_name, updated_at)
			VALUES (?, ?, ?, ?)
		`, id, label, label, now)
		if sqlite.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate speaker label %q", ErrInvalidInput, label)
		}
		if err != nil {
			return nil, fmt.Errorf("create speaker: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create meeting: %w", err)
	}

	s.emit(id, "created", input.CreatedBy, domainaudit.ActionMeetingCreated, map[string]any{"title": title})
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Meeting, error) {
	m := &Meeting{}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, storage_ref, transcript, duration_seconds, created_by, created_at, updated_at
		FROM meeting WHERE id = ?
	`, id).Scan(&m.ID, &m.Title, &m.StorageRef, &m.Transcript, &m.DurationSeconds, &m.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	if err := m.parseTimes(createdAt, updatedAt); err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}

	speakers, err := s.speakers(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Speakers = speakers
	return m, nil
}

func (m *Meeting) parseTimes(createdAt, updatedAt string) error {
	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	return nil
}

// List returns meetings newest first without speakers, and the total count.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Meeting, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meeting`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count meetings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, storage_ref, transcript, duration_seconds, created_by, created_at, updated_at
		FROM meeting
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, input.Limit, input.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	out := []*Meeting{}
	for rows.Next() {
		m := &Meeting{Speakers: []*Speaker{}}
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.Title, &m.StorageRef, &m.Transcript, &m.DurationSeconds, &m.CreatedBy, &createdAt, &updatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan meeting: %w", err)
		}
		if err := m.parseTimes(createdAt, updatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan meeting: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list meetings: %w", err)
	}
	return out, total, nil
}

// UpdateTranscript replaces the transcript text. Blank text is rejected.
func (s *Service) UpdateTranscript(ctx context.Context, id, transcript, actor string) (*Meeting, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcript must not be empty", ErrInvalidInput)
	}
	if err := s.touch(ctx, `UPDATE meeting SET transcript = ?, updated_at = ? WHERE id = ?`, transcript, id); err != nil {
		return nil, err
	}
	s.emit(id, "transcript", actor, domainaudit.ActionTranscriptSaved, map[string]any{"length": len(transcript)})
	return s.Get(ctx, id)
}

// RenameSpeaker sets the display name of an existing speaker label.
func (s *Service) RenameSpeaker(ctx context.Context, id, label, displayName, actor string) (*Meeting, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: speaker name must not be empty", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE meeting_speaker SET display_name = ?, updated_at = ? WHERE meeting_id = ? AND label = ?
	`, displayName, now, id, label)
	if err != nil {
		return nil, fmt.Errorf("rename speaker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSpeakerNotFound
	}
	if err := s.touch(ctx, `UPDATE meeting SET updated_at = ? WHERE id = ?`, id); err != nil {
		return nil, err
	}

	s.emit(id, "speaker", actor, domainaudit.ActionSpeakerRenamed, map[string]any{"label": label, "displayName": displayName})
	return s.Get(ctx, id)
}

// UpdateDuration sets the recorded duration. Seconds must be positive.
func (s *Service) UpdateDuration(ctx context.Context, id string, seconds int, actor string) (*Meeting, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: duration must be greater than zero", ErrInvalidInput)
	}
	if err := s.touch(ctx, `UPDATE meeting SET duration_seconds = ?, updated_at = ? WHERE id = ?`, seconds, id); err != nil {
		return nil, err
	}
	s.emit(id, "duration", actor, domainaudit.ActionDurationSaved, map[string]any{"seconds": seconds})
	return s.Get(ctx, id)
}

// touch runs an UPDATE whose last two placeholders are updated_at and id,
// and maps zero affected rows to ErrNotFound.
func (s *Service) touch(ctx context.Context, query string, args ...any) error {
	id := args[len(args)-1]
	args = append(args[:len(args)-1], time.Now().UTC().Format(time.RFC3339), id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) speakers(ctx context.Context, id string) ([]*Speaker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, display_name FROM meeting_speaker WHERE meeting_id = ? ORDER BY label
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}
	defer rows.Close()

	out := []*Speaker{}
	for rows.Next() {
		sp := &Speaker{}
		if err := rows.Scan(&sp.Label, &sp.DisplayName); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Service) emit(id, field, actor, action string, details map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(TopicUpdated, UpdatedEvent{MeetingID: id, Field: field, Actor: actor})
	s.bus.Publish(domainaudit.Topic, domainaudit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   id,
		Details:    details,
	})
}
