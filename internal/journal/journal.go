// Package journal keeps an optional Postgres record of every claim attempt.
// It supplements the daily logbook; writes are best-effort and never fatal to
// the polling loop.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/visa-watch/internal/db"
)

// Attempt is one row of claim history.
type Attempt struct {
	Date      time.Time
	Time      string
	CASDate   *time.Time
	CASTime   string
	Outcome   string
	Detail    string
	Iteration int
}

// store is the slice of the db wrapper the journal uses; tests fake it.
type store interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) db.Row
	Close()
}

type Journal struct {
	db store
}

const schema = `
CREATE TABLE IF NOT EXISTS claim_attempts (
    id            BIGSERIAL PRIMARY KEY,
    attempted_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    slot_date     DATE        NOT NULL,
    slot_time     TEXT        NOT NULL DEFAULT '',
    cas_date      DATE,
    cas_time      TEXT        NOT NULL DEFAULT '',
    outcome       TEXT        NOT NULL,
    detail        TEXT        NOT NULL DEFAULT '',
    iteration     INT         NOT NULL DEFAULT 0
)`

// Open connects and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Journal, error) {
	d, err := db.Open(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if err := d.Exec(ctx, schema); err != nil {
		d.Close()
		return nil, fmt.Errorf("journal: ensure schema: %w", err)
	}
	return &Journal{db: d}, nil
}

func (j *Journal) Close() {
	j.db.Close()
}

func (j *Journal) Record(ctx context.Context, a Attempt) error {
	err := j.db.Exec(ctx, `
INSERT INTO claim_attempts(slot_date, slot_time, cas_date, cas_time, outcome, detail, iteration)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.Date, a.Time, a.CASDate, a.CASTime, a.Outcome, a.Detail, a.Iteration)
	if err != nil {
		return fmt.Errorf("journal: record attempt: %w", err)
	}
	return nil
}

// LastAttempt returns the most recently recorded attempt; ok is false when
// the journal is empty.
func (j *Journal) LastAttempt(ctx context.Context) (Attempt, bool, error) {
	var a Attempt
	err := db.WrapNotFound(j.db.QueryRow(ctx, `
SELECT slot_date, slot_time, cas_date, cas_time, outcome, detail, iteration
FROM claim_attempts ORDER BY id DESC LIMIT 1`).
		Scan(&a.Date, &a.Time, &a.CASDate, &a.CASTime, &a.Outcome, &a.Detail, &a.Iteration))
	if errors.Is(err, db.ErrNotFound) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("journal: last attempt: %w", err)
	}
	return a, true, nil
}
