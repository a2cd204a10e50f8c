package cube

import "github.com/empresamix/mixbi/internal/domain"

// Status is the final state of one fetch cycle.
type Status string

const (
	// StatusOK means at least one row came back.
	StatusOK Status = "ok"
	// StatusEmpty means the upstream answered but never with rows.
	StatusEmpty Status = "empty"
	// StatusFailed means the upstream could not be reached or kept erroring.
	StatusFailed Status = "failed"
)

// FetchResult is what a fetch cycle produced. Records is never nil.
type FetchResult struct {
	Records  []domain.FactRecord
	Status   Status
	Attempts int
	// Err is the last failure seen, if any.
	Err error
}

// Unavailable reports whether there is nothing to show, whatever the reason.
func (r FetchResult) Unavailable() bool {
	return r.Status != StatusOK || len(r.Records) == 0
}

func emptyResult(status Status, attempts int, err error) FetchResult {
	return FetchResult{Records: []domain.FactRecord{}, Status: status, Attempts: attempts, Err: err}
}
