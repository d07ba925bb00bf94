// Package transcriptstore persists finished transcript segments to Postgres.
package transcriptstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koscakluka/ema-listen/core/events"
)

const schema = `
	CREATE TABLE IF NOT EXISTS transcript_segments (
		id          BIGSERIAL PRIMARY KEY,
		request_id  TEXT NOT NULL,
		kind        TEXT NOT NULL,
		turn_index  INTEGER NOT NULL DEFAULT 0,
		transcript  TEXT NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
		audio_start DOUBLE PRECISION NOT NULL DEFAULT 0,
		audio_end   DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS transcript_segments_request_id_idx ON transcript_segments (request_id, id);
`

// SegmentKind tells which event a segment was taken from.
type SegmentKind string

const (
	SegmentFinal SegmentKind = "final"
	SegmentTurn  SegmentKind = "turn"
)

type Segment struct {
	ID         int64
	RequestID  string
	Kind       SegmentKind
	TurnIndex  int
	Transcript string
	Confidence float64
	AudioStart float64
	AudioEnd   float64
	CreatedAt  time.Time
}

// SegmentFromEvent returns the segment to persist for ev. Only settled text
// is kept: non-empty final results and ended turns.
func SegmentFromEvent(requestID string, ev events.Event) (Segment, bool) {
	switch e := ev.(type) {
	case events.FinalResult:
		if e.Transcript == "" {
			return Segment{}, false
		}
		return Segment{
			RequestID:  requestID,
			Kind:       SegmentFinal,
			Transcript: e.Transcript,
			Confidence: e.Confidence,
			AudioStart: e.Start,
			AudioEnd:   e.Start + e.Duration,
		}, true

	case events.TurnEvent:
		if e.Type != events.EndOfTurn || e.Transcript == "" {
			return Segment{}, false
		}
		return Segment{
			RequestID:  requestID,
			Kind:       SegmentTurn,
			TurnIndex:  e.TurnIndex,
			Transcript: e.Transcript,
			Confidence: e.EndOfTurnConfidence,
			AudioStart: e.AudioWindowStart,
			AudioEnd:   e.AudioWindowEnd,
		}, true
	}
	return Segment{}, false
}

// Store writes segments to the transcript_segments table. A Store without a
// pool accepts everything and stores nothing.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Record saves the segment taken from ev, if there is one.
func (s *Store) Record(ctx context.Context, requestID string, ev events.Event) error {
	segment, ok := SegmentFromEvent(requestID, ev)
	if !ok || s.db == nil {
		return nil
	}
	_, err := s.Save(ctx, segment)
	return err
}

func (s *Store) Save(ctx context.Context, segment Segment) (Segment, error) {
	if s.db == nil {
		return segment, nil
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO transcript_segments (request_id, kind, turn_index, transcript, confidence, audio_start, audio_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, segment.RequestID, string(segment.Kind), segment.TurnIndex, segment.Transcript,
		segment.Confidence, segment.AudioStart, segment.AudioEnd,
	).Scan(&segment.ID, &segment.CreatedAt)
	return segment, err
}

// ListByRequest returns the segments of one session in the order they were
// saved.
func (s *Store) ListByRequest(ctx context.Context, requestID string) ([]Segment, error) {
	if s.db == nil {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, request_id, kind, turn_index, transcript, confidence, audio_start, audio_end, created_at
		FROM transcript_segments
		WHERE request_id = $1
		ORDER BY id
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var segment Segment
		var kind string
		err := rows.Scan(
			&segment.ID, &segment.RequestID, &kind, &segment.TurnIndex, &segment.Transcript,
			&segment.Confidence, &segment.AudioStart, &segment.AudioEnd, &segment.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		segment.Kind = SegmentKind(kind)
		out = append(out, segment)
	}
	return out, rows.Err()
}
