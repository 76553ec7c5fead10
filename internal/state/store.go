// Package state tracks computation runs and their artifact hashes in a
// SQLite database.
package state

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded computation run.
type Run struct {
	ID          string
	Workbook    string
	Status      RunStatus
	Params      string // JSON-encoded parameter mapping
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ArtifactRecord ties one artifact kind of a run to its content hash.
type ArtifactRecord struct {
	RunID string
	Kind  string
	Hash  string
}

// Store is the persistence surface consumed by the CLI and the HTTP
// server.
type Store interface {
	CreateRun(workbook, paramsJSON string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	RecordArtifact(runID, kind, hash string) error
	GetArtifacts(runID string) ([]*ArtifactRecord, error)
	Close() error
}
