package transcriptstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koscakluka/ema-listen/core/events"
)

// getTestDB returns a database pool for testing.
// Skips the test if EMA_LISTEN_TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("EMA_LISTEN_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("EMA_LISTEN_TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func TestSegmentFromEvent(t *testing.T) {
	final := events.NewFinalResult("hello there", nil, 0.9)
	final.Start = 1.5
	final.Duration = 2

	ended := events.NewTurnEvent(events.EndOfTurn, 4, "book a table")
	ended.EndOfTurnConfidence = 0.8

	testCases := []struct {
		name  string
		event events.Event
		ok    bool
		kind  SegmentKind
	}{
		{name: "final result", event: final, ok: true, kind: SegmentFinal},
		{name: "empty final result", event: events.NewFinalResult("", nil, 0), ok: false},
		{name: "interim result", event: events.NewInterimResult("hel", nil, 0.5), ok: false},
		{name: "end of turn", event: ended, ok: true, kind: SegmentTurn},
		{name: "eager end of turn", event: events.NewTurnEvent(events.EagerEndOfTurn, 4, "book a"), ok: false},
		{name: "metadata", event: events.NewMetadata("id"), ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			segment, ok := SegmentFromEvent("request", tc.event)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && segment.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, segment.Kind)
			}
		})
	}

	segment, _ := SegmentFromEvent("request", final)
	if segment.AudioStart != 1.5 || segment.AudioEnd != 3.5 {
		t.Fatalf("expected audio window [1.5 3.5], got [%v %v]", segment.AudioStart, segment.AudioEnd)
	}
	segment, _ = SegmentFromEvent("request", ended)
	if segment.TurnIndex != 4 || segment.Confidence != 0.8 {
		t.Fatalf("expected turn 4 with confidence 0.8, got %+v", segment)
	}
}

func TestStoreWithoutDatabaseIsNoop(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("expected migrate to be a no-op, got %v", err)
	}
	if err := s.Record(ctx, "request", events.NewFinalResult("hi", nil, 1)); err != nil {
		t.Fatalf("expected record to be a no-op, got %v", err)
	}
	segments, err := s.ListByRequest(ctx, "request")
	if err != nil || len(segments) != 0 {
		t.Fatalf("expected no segments, got %v, %v", segments, err)
	}
}

func TestStoreRecordsSegments(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	requestID := uuid.NewString()
	for _, ev := range []events.Event{
		events.NewInterimResult("hel", nil, 0.4),
		events.NewFinalResult("hello", nil, 0.9),
		events.NewTurnEvent(events.EndOfTurn, 0, "hello world"),
	} {
		if err := s.Record(ctx, requestID, ev); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	segments, err := s.ListByRequest(ctx, requestID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Kind != SegmentFinal || segments[0].Transcript != "hello" {
		t.Fatalf("expected final segment first, got %+v", segments[0])
	}
	if segments[1].Kind != SegmentTurn || segments[1].Transcript != "hello world" {
		t.Fatalf("expected turn segment second, got %+v", segments[1])
	}
	if segments[0].ID == 0 || segments[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set, got %+v", segments[0])
	}
}
