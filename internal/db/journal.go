package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/arlabel/internal/anchor"
	"github.com/banshee-data/arlabel/internal/timeutil"
	"github.com/google/uuid"
)

// Outcome recorded for a placement that created an anchor.
const OutcomePlaced = "placed"

// Session is one tracking session.
type Session struct {
	ID        string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// PlacementRecord is one journaled placement attempt.
type PlacementRecord struct {
	ID         string    `json:"placement_id"`
	SessionID  string    `json:"session_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	State      string    `json:"state"`
	Outcome    string    `json:"outcome"`
	ScreenX    *float64  `json:"screen_x,omitempty"`
	ScreenY    *float64  `json:"screen_y,omitempty"`
	AnchorID   *string   `json:"anchor_id,omitempty"`
	PosX       *float64  `json:"pos_x,omitempty"`
	PosY       *float64  `json:"pos_y,omitempty"`
	PosZ       *float64  `json:"pos_z,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal records placement attempts against the open session. It implements
// anchor.PlacementRecorder.
type Journal struct {
	db    *DB
	clock timeutil.Clock

	mu        sync.Mutex
	sessionID string
}

var _ anchor.PlacementRecorder = (*Journal)(nil)

// NewJournal creates a Journal. Call StartSession before recording.
func NewJournal(db *DB, clock timeutil.Clock) *Journal {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Journal{db: db, clock: clock}
}

// SessionID returns the open session, or "" if none.
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

// StartSession opens a new session and returns its ID. An already open
// session is ended first.
func (j *Journal) StartSession(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.endLocked(ctx); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`,
		id, j.clock.Now().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	j.sessionID = id
	return id, nil
}

// NewSession ends the open session and starts another.
func (j *Journal) NewSession(ctx context.Context) error {
	_, err := j.StartSession(ctx)
	return err
}

// EndSession marks the open session as ended.
func (j *Journal) EndSession(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.endLocked(ctx)
}

func (j *Journal) endLocked(ctx context.Context) error {
	if j.sessionID == "" {
		return nil
	}
	if _, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`,
		j.clock.Now().UnixNano(), j.sessionID,
	); err != nil {
		return fmt.Errorf("failed to end session %s: %w", j.sessionID, err)
	}
	j.sessionID = ""
	return nil
}

// RecordPlacement journals p under the open session.
func (j *Journal) RecordPlacement(ctx context.Context, p anchor.Placement) error {
	sessionID := j.SessionID()
	if sessionID == "" {
		return fmt.Errorf("no open journal session")
	}

	outcome := OutcomePlaced
	if !p.Succeeded() {
		outcome = p.Error
	}

	var screenX, screenY, posX, posY, posZ sql.NullFloat64
	var anchorID sql.NullString
	if p.State == anchor.StateDone || p.AbortedAt > anchor.StateTransforming {
		screenX = sql.NullFloat64{Float64: p.ScreenPoint.X, Valid: true}
		screenY = sql.NullFloat64{Float64: p.ScreenPoint.Y, Valid: true}
	}
	if p.Anchor != nil {
		pos := p.Anchor.Transform.Position()
		anchorID = sql.NullString{String: p.Anchor.ID, Valid: true}
		posX = sql.NullFloat64{Float64: pos.X, Valid: true}
		posY = sql.NullFloat64{Float64: pos.Y, Valid: true}
		posZ = sql.NullFloat64{Float64: pos.Z, Valid: true}
	}

	createdAt := p.StartedAt
	if createdAt.IsZero() {
		createdAt = j.clock.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO placements (
			placement_id, session_id, label, confidence, state, outcome,
			screen_x, screen_y, anchor_id, pos_x, pos_y, pos_z, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, sessionID, p.Candidate.Label, p.Candidate.Confidence, p.State.String(), outcome,
		screenX, screenY, anchorID, posX, posY, posZ, createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record placement %s: %w", p.ID, err)
	}
	return nil
}

// Placements returns the placements of sessionID, oldest first. An empty
// sessionID selects the open session.
func (j *Journal) Placements(ctx context.Context, sessionID string) ([]PlacementRecord, error) {
	if sessionID == "" {
		sessionID = j.SessionID()
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT placement_id, session_id, label, confidence, state, outcome,
			screen_x, screen_y, anchor_id, pos_x, pos_y, pos_z, created_at
		FROM placements WHERE session_id = ? ORDER BY created_at, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlacementRecord
	for rows.Next() {
		var (
			r                PlacementRecord
			screenX, screenY sql.NullFloat64
			posX, posY, posZ sql.NullFloat64
			anchorID         sql.NullString
			createdAt        int64
		)
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Label, &r.Confidence, &r.State, &r.Outcome,
			&screenX, &screenY, &anchorID, &posX, &posY, &posZ, &createdAt,
		); err != nil {
			return nil, err
		}
		r.ScreenX = nullFloat(screenX)
		r.ScreenY = nullFloat(screenY)
		r.PosX = nullFloat(posX)
		r.PosY = nullFloat(posY)
		r.PosZ = nullFloat(posZ)
		if anchorID.Valid {
			r.AnchorID = &anchorID.String
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sessions returns the most recent sessions, newest first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, started_at, ended_at FROM sessions
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &started, &ended); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
