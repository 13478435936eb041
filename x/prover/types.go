// Package prover defines the boundary to the remote proving service.
package prover

import (
	"context"
	"errors"
)

var (
	// ErrServiceUnavailable marks transient failures: the service is down, rate limited or unreachable.
	ErrServiceUnavailable = errors.New("prover service unavailable")
	// ErrServiceError marks a request the service rejected or answered with a malformed body.
	ErrServiceError = errors.New("prover service error")
	// ErrNotFound is returned when a query or its artifact does not exist yet.
	ErrNotFound = errors.New("prover artifact not found")
)

// QueryID identifies a proving job on the remote service.
type QueryID = string

const (
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Client is the proving service as seen by the pipeline.
type Client interface {
	// SubmitProofGeneration uploads a block execution trace and starts step-1 proving.
	SubmitProofGeneration(ctx context.Context, trace []byte) (QueryID, error)
	// SubmitLayoutBridgeQuery starts step-2 proving over a step-1 proof.
	SubmitLayoutBridgeQuery(ctx context.Context, traceProof string) (QueryID, error)
	CheckStatus(ctx context.Context, queryID QueryID) (JobStatus, error)
	FetchProof(ctx context.Context, queryID QueryID) (string, error)
}

// Job is one sub-job of a query.
type Job struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Step   string `json:"step,omitempty"`
}

// JobStatus is the prover's view of a query.
type JobStatus struct {
	Jobs []Job `json:"jobs"`
}

// Complete reports whether the query has at least one sub-job and all of them completed.
func (s JobStatus) Complete() bool {
	if len(s.Jobs) == 0 {
		return false
	}
	for _, j := range s.Jobs {
		if j.Status != JobStatusCompleted {
			return false
		}
	}
	return true
}

// Failed reports whether any sub-job failed.
func (s JobStatus) Failed() bool {
	for _, j := range s.Jobs {
		if j.Status == JobStatusFailed {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
