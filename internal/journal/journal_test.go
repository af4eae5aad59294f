package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/visa-watch/internal/db"
)

type fakeStore struct {
	execSQL  []string
	execArgs [][]any
	row      fakeRow
}

func (s *fakeStore) Exec(_ context.Context, sql string, args ...any) error {
	s.execSQL = append(s.execSQL, sql)
	s.execArgs = append(s.execArgs, args)
	return nil
}

func (s *fakeStore) QueryRow(_ context.Context, sql string, args ...any) db.Row {
	return s.row
}

func (s *fakeStore) Close() {}

// fakeRow scans a canned attempt into the destinations, or fails.
type fakeRow struct {
	attempt Attempt
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*time.Time) = r.attempt.Date
	*dest[1].(*string) = r.attempt.Time
	*dest[2].(**time.Time) = r.attempt.CASDate
	*dest[3].(*string) = r.attempt.CASTime
	*dest[4].(*string) = r.attempt.Outcome
	*dest[5].(*string) = r.attempt.Detail
	*dest[6].(*int) = r.attempt.Iteration
	return nil
}

func TestRecordWritesAllFields(t *testing.T) {
	s := &fakeStore{}
	j := &Journal{db: s}

	cas := time.Date(2025, 4, 22, 0, 0, 0, 0, time.UTC)
	a := Attempt{
		Date:      time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		Time:      "09:00",
		CASDate:   &cas,
		CASTime:   "08:00",
		Outcome:   "SUCCESS",
		Detail:    "booked",
		Iteration: 3,
	}
	if err := j.Record(context.Background(), a); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(s.execArgs) != 1 || len(s.execArgs[0]) != 7 {
		t.Fatalf("exec args = %v", s.execArgs)
	}
	if s.execArgs[0][4] != "SUCCESS" || s.execArgs[0][6] != 3 {
		t.Fatalf("exec args = %v", s.execArgs[0])
	}
}

func TestLastAttemptScansRow(t *testing.T) {
	cas := time.Date(2025, 4, 22, 0, 0, 0, 0, time.UTC)
	want := Attempt{
		Date:      time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		Time:      "09:00",
		CASDate:   &cas,
		CASTime:   "08:00",
		Outcome:   "FAIL",
		Detail:    "lost race",
		Iteration: 7,
	}
	j := &Journal{db: &fakeStore{row: fakeRow{attempt: want}}}

	got, ok, err := j.LastAttempt(context.Background())
	if err != nil {
		t.Fatalf("LastAttempt: %v", err)
	}
	if !ok {
		t.Fatal("want ok for a populated journal")
	}
	if !got.Date.Equal(want.Date) || got.Outcome != "FAIL" || got.Iteration != 7 {
		t.Fatalf("got = %+v", got)
	}
	if got.CASDate == nil || !got.CASDate.Equal(cas) {
		t.Fatalf("cas date = %v", got.CASDate)
	}
}

func TestLastAttemptEmptyJournal(t *testing.T) {
	j := &Journal{db: &fakeStore{row: fakeRow{err: pgx.ErrNoRows}}}

	_, ok, err := j.LastAttempt(context.Background())
	if err != nil {
		t.Fatalf("an empty journal is not an error, got %v", err)
	}
	if ok {
		t.Fatal("want ok=false for an empty journal")
	}
}

func TestLastAttemptSurfacesScanError(t *testing.T) {
	j := &Journal{db: &fakeStore{row: fakeRow{err: errors.New("conn reset")}}}

	if _, _, err := j.LastAttempt(context.Background()); err == nil {
		t.Fatal("scan failures must surface")
	}
}
