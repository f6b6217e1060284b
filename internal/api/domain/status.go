package domain

import "fmt"

// Status is the lifecycle state of a job
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// ParseStatus accepts only the exact enum spelling
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// Terminal reports whether no transition may leave s
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// Decision is the result of looking a transition up in the table
type Decision int

const (
	Reject Decision = iota
	Apply
	Duplicate
)

func (d Decision) String() string {
	switch d {
	case Apply:
		return "applied"
	case Duplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// transitions lists every allowed (from, to) pair; anything missing is rejected
var transitions = map[Status]map[Status]Decision{
	StatusProcessing: {
		StatusProcessing: Apply,
		StatusCompleted:  Apply,
		StatusFailed:     Apply,
	},
	StatusCompleted: {
		StatusCompleted: Duplicate,
	},
	StatusFailed: {
		StatusFailed: Duplicate,
	},
}

// Decide classifies moving a job from one status to another
func Decide(from, to Status) Decision {
	return transitions[from][to]
}

// SourcesFor returns the statuses a job may be in for a transition to `to`
// to be applied. Used as the guard of the conditional row update.
func SourcesFor(to Status) []Status {
	var from []Status
	for _, s := range []Status{StatusProcessing, StatusCompleted, StatusFailed} {
		if Decide(s, to) == Apply {
			from = append(from, s)
		}
	}
	return from
}
