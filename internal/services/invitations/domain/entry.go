// Package domain implements the invitation campaign lifecycle: recipient
// resolution, ledger reconciliation, bounded-concurrency dispatch, and the
// cross-survey sweep.
package domain

import (
	"strings"
	"time"
)

// Status represents the lifecycle status of an invitation entry.
type Status int

const (
	// StatusUnspecified represents an invalid entry status.
	StatusUnspecified Status = iota
	// StatusPending indicates an invitation has not been sent yet.
	StatusPending
	// StatusSent indicates the notification was accepted by the transport.
	StatusSent
	// StatusFailed indicates the last send attempt failed and the entry is
	// eligible for the next sweep.
	StatusFailed
	// StatusAbandoned indicates the entry exhausted its retry budget.
	StatusAbandoned
)

// Entry is one respondent's invitation lifecycle record within a ledger.
// A ledger holds at most one entry per respondent.
type Entry struct {
	RespondentID string
	Status       Status
	Attempts     int
	LastError    string
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sendable reports whether the entry is eligible for a send attempt.
func (e Entry) Sendable() bool {
	return e.Status == StatusPending || e.Status == StatusFailed
}

// StatusLabel returns the string label for an entry status.
func StatusLabel(status Status) string {
	switch status {
	case StatusPending:
		return "PENDING"
	case StatusSent:
		return "SENT"
	case StatusFailed:
		return "FAILED"
	case StatusAbandoned:
		return "ABANDONED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel converts a status label to a Status value.
func StatusFromLabel(label string) Status {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return StatusPending
	case "SENT":
		return StatusSent
	case "FAILED":
		return StatusFailed
	case "ABANDONED":
		return StatusAbandoned
	default:
		return StatusUnspecified
	}
}
