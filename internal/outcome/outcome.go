// Package outcome defines the structured results and error taxonomy reported
// for every series and timepoint of a curation run.
package outcome

import (
	"errors"
	"sort"
)

var (
	// ErrHeaderUnreadable marks a file whose header could not be parsed.
	ErrHeaderUnreadable = errors.New("header unreadable")
	// ErrReferenceMissing marks a plan, structure or CT reference that is
	// absent or points at nothing in the timepoint.
	ErrReferenceMissing = errors.New("reference missing")
	// ErrNoApprovedPlan marks a timepoint without an approved curative plan.
	ErrNoApprovedPlan = errors.New("no approved plan")
	// ErrConversionFailure marks a series the external converter rejected.
	ErrConversionFailure = errors.New("conversion failure")
	// ErrDestinationCollision marks an existing destination that was renamed.
	ErrDestinationCollision = errors.New("destination collision")
)

// Kind is the class of an Outcome.
type Kind int

const (
	Success Kind = iota
	CTOnlyFallback
	ModalityUnknown
	ConversionError
)

// String returns the label used in logs, tables and the run ledger.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case CTOnlyFallback:
		return "ct-only-fallback"
	case ModalityUnknown:
		return "modality-unknown"
	case ConversionError:
		return "conversion-error"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{Success, CTOnlyFallback, ModalityUnknown, ConversionError} {
		if k.String() == s {
			return k, true
		}
	}
	return Success, false
}

// Outcome is the result of curating one series or one RT timepoint.
type Outcome struct {
	Kind      Kind
	Subject   string
	Timepoint string
	// Series is the grouping key for imaging series, empty for RT timepoints.
	Series string
	// Stage names the component that produced the outcome ("route", "rt").
	Stage  string
	Detail string
	Err    error
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Sort orders outcomes by subject, timepoint, stage and series so reports are
// stable regardless of worker scheduling.
func Sort(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		a, b := outcomes[i], outcomes[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Timepoint != b.Timepoint {
			return a.Timepoint < b.Timepoint
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		return a.Series < b.Series
	})
}

// Count returns how many outcomes have the given kind.
func Count(outcomes []Outcome, kind Kind) int {
	n := 0
	for _, o := range outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}
