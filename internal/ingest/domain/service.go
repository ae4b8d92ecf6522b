package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Run(ctx context.Context, supplierID int64) (*Summary, error)
	RunAll(ctx context.Context) ([]Summary, error)
	Replay(ctx context.Context, supplierID int64, artifactPath string) (*Summary, error)
	ListRuns(ctx context.Context, req ListRunsRequest) ([]Run, error)
}

type ListRunsRequest struct {
	SupplierID int64
	Limit      int
}

// Summary is the operator-facing result of one supplier run.
type Summary struct {
	RunID        string        `json:"run_id"`
	SupplierID   int64         `json:"supplier_id"`
	SupplierName string        `json:"supplier_name"`
	Status       RunStatus     `json:"status"`
	Mode         string        `json:"mode"`
	Inserted     int           `json:"inserted"`
	Skipped      int           `json:"skipped"`
	Enriched     int           `json:"enriched"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
	Artifact     string        `json:"artifact,omitempty"`
	Error        string        `json:"error,omitempty"`
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	ErrSupplierNotFound  = errors.New("supplier_not_found")
	ErrSupplierDisabled  = errors.New("supplier_disabled")
	ErrRunInProgress     = errors.New("run_in_progress")
	ErrInvalidArtifact   = errors.New("invalid_artifact")
	ErrInvalidLimit      = errors.New("invalid_limit")
	ErrFetchExhausted    = errors.New("fetch_exhausted")
	ErrStoreUnavailable  = errors.New("store_unavailable")
	ErrInvalidTransition = errors.New("invalid_run_transition")
)

// RunLock serializes runs of one supplier across processes. A nil release is
// never returned when acquired is true.
type RunLock interface {
	Acquire(ctx context.Context, supplierID int64) (release func(), acquired bool, err error)
}
