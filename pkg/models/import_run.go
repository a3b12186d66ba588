package models

import "time"

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusSuccess    RunStatus = "success"
	RunStatusPartial    RunStatus = "partial"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether the run has been finalized.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

type RunKind string

const (
	RunKindDiscovery RunKind = "discovery"
	RunKindFullTree  RunKind = "full_tree"
)

// Counters are the progress counters checkpointed during a run.
type Counters struct {
	PersonsCreated       int `json:"persons_created"`
	PersonsUpdated       int `json:"persons_updated"`
	RelationshipsCreated int `json:"relationships_created"`
	DuplicatesFound      int `json:"duplicates_found"`
	PersonsProcessed     int `json:"persons_processed"`
}

type RunError struct {
	Person string `json:"person"`
	Error  string `json:"error"`
}

// ImportRun is the progress record of one discovery or full-tree run.
type ImportRun struct {
	ID             string     `json:"id" db:"id"`
	Kind           RunKind    `json:"kind" db:"kind"`
	Key            string     `json:"key" db:"key"`
	FamilyTreeID   string     `json:"family_tree_id" db:"family_tree_id"`
	ActorID        string     `json:"actor_id" db:"actor_id"`
	SeedIdentifier string     `json:"seed_identifier" db:"seed_identifier"`
	Status         RunStatus  `json:"status" db:"status"`
	Counters       Counters   `json:"counters"`
	Errors         []RunError `json:"errors"`
	FailureMessage string     `json:"failure_message,omitempty" db:"failure_message"`
	PersonID       string     `json:"person_id,omitempty" db:"person_id"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Result is the exposed outcome of both run variants.
type Result struct {
	RunID                string     `json:"run_id"`
	Status               RunStatus  `json:"status"`
	PersonID             string     `json:"person_id,omitempty"`
	PersonsCreated       int        `json:"persons_created"`
	PersonsUpdated       int        `json:"persons_updated"`
	RelationshipsCreated int        `json:"relationships_created"`
	DuplicatesFound      int        `json:"duplicates_found"`
	PersonsProcessed     int        `json:"persons_processed"`
	Errors               []RunError `json:"errors"`
	Skipped              bool       `json:"skipped,omitempty"`
}

// ResultFromRun builds the exposed result from a stored run.
func ResultFromRun(run *ImportRun) Result {
	errs := run.Errors
	if errs == nil {
		errs = []RunError{}
	}
	return Result{
		RunID:                run.ID,
		Status:               run.Status,
		PersonID:             run.PersonID,
		PersonsCreated:       run.Counters.PersonsCreated,
		PersonsUpdated:       run.Counters.PersonsUpdated,
		RelationshipsCreated: run.Counters.RelationshipsCreated,
		DuplicatesFound:      run.Counters.DuplicatesFound,
		PersonsProcessed:     run.Counters.PersonsProcessed,
		Errors:               errs,
	}
}

// FinalStatus applies the terminal status rule: failed when the run created no
// person, partial when errors accumulated, success otherwise. A run that only
// updated persons it had already stored ends as failed.
func FinalStatus(c Counters, errorCount int) RunStatus {
	switch {
	case c.PersonsCreated == 0:
		return RunStatusFailed
	case errorCount > 0:
		return RunStatusPartial
	default:
		return RunStatusSuccess
	}
}

// RunSummary is what a run writes when it finalizes.
type RunSummary struct {
	Status   RunStatus  `json:"status"`
	Counters Counters   `json:"counters"`
	Errors   []RunError `json:"errors"`
	PersonID string     `json:"person_id,omitempty"`
}
