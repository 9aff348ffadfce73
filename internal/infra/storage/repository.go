package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no failure was recorded for a correlation id
	ErrNotFound = errors.New("failure not found")
)

// JournalEntry is a rendered failure as seen by the caller.
type JournalEntry struct {
	CID            string    `json:"cid"`
	Status         int       `json:"status"`
	Message        string    `json:"message"`
	Method         string    `json:"method"`
	URI            string    `json:"uri"`
	Host           string    `json:"host"`
	Representation string    `json:"representation"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// JournalRepository records rendered failures for support lookups
type JournalRepository interface {
	// Record stores an entry, replacing any previous entry for the same CID
	Record(ctx context.Context, e JournalEntry) error

	// Get retrieves the entry for a correlation id
	Get(ctx context.Context, cid string) (*JournalEntry, error)

	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)

	// DeleteOlderThan removes entries that occurred before threshold
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error)
}
