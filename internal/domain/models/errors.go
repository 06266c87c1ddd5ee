package models

import "fmt"

// TransportError wraps a network or timeout failure for one source. Retried with
// backoff by the transport manager, never fatal.
type TransportError struct {
	SourceID string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.SourceID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NormalizationError marks a malformed payload record. The record is dropped and
// the rest of the batch continues.
type NormalizationError struct {
	SourceID string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.SourceID, e.Reason)
}

// AnomalyKind classifies merge anomalies counted by the state store.
type AnomalyKind string

const (
	AnomalyStatusRegression AnomalyKind = "status_regression"
	AnomalyDuplicateSeq     AnomalyKind = "duplicate_sequence"
)

// MergeAnomaly records an event the store refused to merge. Counted, never raised.
type MergeAnomaly struct {
	Kind     AnomalyKind
	SourceID string
	Detail   string
}

func (e *MergeAnomaly) Error() string {
	return fmt.Sprintf("merge anomaly %s (%s): %s", e.Kind, e.SourceID, e.Detail)
}

// StalenessViolation means a source's last successful update exceeds the freshness
// threshold. Surfaces as degraded health, not as an exception on the read path.
type StalenessViolation struct {
	SourceID string
	AgeMs    int64
}

func (e *StalenessViolation) Error() string {
	return fmt.Sprintf("stale source %s: %dms since last check", e.SourceID, e.AgeMs)
}
