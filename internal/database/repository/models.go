package repository

import "time"

// Note represents a note row.
type Note struct {
	ID        string
	Title     string
	Content   string
	Category  *string
	Archived  bool
	Trashed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job statuses.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job represents a queued backup_jobs row.
type Job struct {
	ID        string
	Kind      string
	Argument  string
	Status    string
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
