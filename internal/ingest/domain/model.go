package domain

import "time"

type RunStatus string

const (
	StatusFetching    RunStatus = "fetching"
	StatusParsing     RunStatus = "parsing"
	StatusNormalizing RunStatus = "normalizing"
	StatusEnriching   RunStatus = "enriching"
	StatusWriting     RunStatus = "writing"
	StatusSucceeded   RunStatus = "succeeded"
	StatusFailed      RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

var transitions = map[RunStatus][]RunStatus{
	StatusFetching:    {StatusParsing, StatusFailed},
	StatusParsing:     {StatusNormalizing, StatusFailed},
	StatusNormalizing: {StatusEnriching, StatusWriting, StatusFailed},
	StatusEnriching:   {StatusWriting, StatusFailed},
	StatusWriting:     {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether the pipeline may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is one persisted ingestion attempt for a supplier.
type Run struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	SupplierID   int64      `json:"supplier_id" gorm:"not null;index:idx_ingestion_runs_supplier_started,priority:1"`
	SupplierName string     `json:"supplier_name" gorm:"type:varchar(255);not null;default:''"`
	Status       RunStatus  `json:"status" gorm:"type:varchar(32);not null"`
	Mode         string     `json:"mode" gorm:"type:varchar(32);not null"`
	Inserted     int        `json:"inserted" gorm:"not null;default:0"`
	Skipped      int        `json:"skipped" gorm:"not null;default:0"`
	Error        *string    `json:"error,omitempty" gorm:"type:text"`
	ArtifactPath *string    `json:"artifact_path,omitempty" gorm:"type:text"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null;index:idx_ingestion_runs_supplier_started,priority:2"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMS   int64      `json:"duration_ms" gorm:"column:duration_ms;not null;default:0"`
}

func (Run) TableName() string { return "ingestion_runs" }
