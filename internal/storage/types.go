package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain caps stored fault rows (sqlite); 0 means 10000.
	Retain int
}

// Store persists fault history and periodic frame stats.
type Store interface {
	AppendFaults(ctx context.Context, recs []FaultRecord) error
	AppendFrameStats(ctx context.Context, st FrameStats) error
	// RecentFaults returns up to limit records, newest last.
	RecentFaults(ctx context.Context, limit int) ([]FaultRecord, error)
	Close() error
}

// FaultRecord is the persisted form of one participant fault.
type FaultRecord struct {
	At          time.Time `json:"at"`
	Phase       string    `json:"phase"`
	Participant string    `json:"participant"`
	Error       string    `json:"error,omitempty"`
	Panic       string    `json:"panic,omitempty"`
}

// FrameStats is a periodic snapshot of the frame loop.
type FrameStats struct {
	At          time.Time `json:"at"`
	Frame       uint64    `json:"frame"`
	FPS         float64   `json:"fps"`
	TimeScale   float64   `json:"time_scale"`
	Update      int       `json:"update"`
	FixedUpdate int       `json:"fixed_update"`
	LateUpdate  int       `json:"late_update"`
	Background  int       `json:"background"`
	Faults      uint64    `json:"faults"`
	DroppedMS   int64     `json:"dropped_fixed_ms"`
}
