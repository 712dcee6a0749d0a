package models

import "time"

// ProcessingStatus is the lifecycle state of a planned month.
type ProcessingStatus string

const (
	StatusInProgress ProcessingStatus = "in_progress"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// ProcessingLog is one row per (year, month) attempted, unique on
// (year, month). A status=in_progress row found at startup indicates
// an interrupted prior attempt and must be retried.
type ProcessingLog struct {
	Year             int
	Month            int
	SourceFile       string
	RecordsLoaded    int64
	StartedAt        time.Time
	CompletedAt      *time.Time
	BackfillLabel    string
	Status           ProcessingStatus
	AttemptCount     int
}

// QualityLevel is the categorical assessment derived by the store from
// the error and duplicate rates of a QualityRecord.
type QualityLevel string

const (
	QualityExcellent  QualityLevel = "EXCELLENT"
	QualityGood       QualityLevel = "GOOD"
	QualityAcceptable QualityLevel = "ACCEPTABLE"
	QualityPoor       QualityLevel = "POOR"
	QualityCritical   QualityLevel = "CRITICAL"
)

// OperationKind labels which pipeline stage produced a QualityRecord.
type OperationKind string

const (
	OperationNormalizedLoad OperationKind = "normalized_load"
	OperationDimensionalLoad OperationKind = "dimensional_load"
)

// QualityRecord is one per-chunk insert accounting row. Invariant:
// RowsInserted + RowsDuplicates + RowsInvalid <= RowsAttempted.
type QualityRecord struct {
	MonitoredAt  time.Time
	SourceFile   string
	Operation    OperationKind
	TargetTable  string
	ChunkNumber  int
	SessionID    string // uuid, one per orchestrator run

	RowsAttempted  int64
	RowsInserted   int64
	RowsUpdated    int64
	RowsDeleted    int64
	RowsDuplicates int64
	RowsInvalid    int64
	RowsSkipped    int64

	DurationMS int64

	NullViolations          int64
	ConstraintViolations    int64
	DataTypeViolations      int64
	BusinessRuleViolations  int64
	ReferentialViolations   int64
}

// Rates computes the derived success/duplicate/error rates used for
// QualityLevel classification. Division-by-zero (empty chunk) yields
// all-zero rates, which classifies as EXCELLENT.
func (q QualityRecord) Rates() (success, duplicate, errRate float64) {
	if q.RowsAttempted == 0 {
		return 0, 0, 0
	}
	total := float64(q.RowsAttempted)
	success = float64(q.RowsInserted) / total
	duplicate = float64(q.RowsDuplicates) / total
	errRate = float64(q.RowsInvalid) / total
	return
}

// Level derives the QualityLevel from the error and duplicate rates.
func (q QualityRecord) Level() QualityLevel {
	_, dup, errRate := q.Rates()
	switch {
	case errRate <= 0.01 && dup <= 0.05:
		return QualityExcellent
	case errRate <= 0.03 && dup <= 0.10:
		return QualityGood
	case errRate <= 0.05 && dup <= 0.15:
		return QualityAcceptable
	case errRate <= 0.10 && dup <= 0.25:
		return QualityPoor
	default:
		return QualityCritical
	}
}
