// Package storage defines persistence records and store boundaries for the
// invitation campaign engine.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// Entry status labels persisted in the invitation_entries table.
const (
	EntryStatusPending   = "pending"
	EntryStatusSent      = "sent"
	EntryStatusFailed    = "failed"
	EntryStatusAbandoned = "abandoned"
)

// Survey status labels persisted in the surveys table.
const (
	SurveyStatusDraft    = "draft"
	SurveyStatusLive     = "live"
	SurveyStatusClosed   = "closed"
	SurveyStatusArchived = "archived"
)

// EntryRecord stores one respondent's invitation lifecycle row.
type EntryRecord struct {
	SurveyID     string
	RespondentID string
	Status       string
	Attempts     int
	LastError    string
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LedgerRecord stores one survey's entitlement sets and entries.
type LedgerRecord struct {
	SurveyID      string
	RespondentIDs []string
	GroupIDs      []string
	Entries       []EntryRecord
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SurveyRecord stores one survey catalog row.
type SurveyRecord struct {
	ID        string
	Slug      string
	Title     string
	Status    string
	CloseDate *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RespondentRecord stores one recipient directory row.
type RespondentRecord struct {
	ID          string
	Email       string
	DisplayName string
	Enabled     bool
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupRecord stores one named respondent group.
type GroupRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResponseRecord stores one completed survey response marker.
type ResponseRecord struct {
	SurveyID     string
	RespondentID string
	CompletedAt  time.Time
}

// DueItemRecord joins one sendable entry with its survey and respondent
// context for the cross-survey sweep.
type DueItemRecord struct {
	SurveyID     string
	SurveySlug   string
	SurveyTitle  string
	RespondentID string
	Email        string
	Status       string
	Attempts     int
}

// LedgerStore is the persistence boundary for invitation ledgers.
type LedgerStore interface {
	GetLedger(ctx context.Context, surveyID string) (LedgerRecord, error)
	PutLedger(ctx context.Context, record LedgerRecord) error
	ReplaceEntitlement(ctx context.Context, surveyID string, respondentIDs []string, groupIDs []string) error
	// UpsertEntries inserts missing entry rows; existing rows keep their
	// lifecycle state untouched.
	UpsertEntries(ctx context.Context, surveyID string, entries []EntryRecord) error
	DeleteEntries(ctx context.Context, surveyID string, respondentIDs []string) error
	UpdateEntryStatus(ctx context.Context, surveyID string, respondentID string, status string, sentAt *time.Time, attempts int, lastError string) error
	// ListDueEntries returns pending and failed entries whose survey is live
	// and whose respondent is enabled, not archived, and has not completed
	// the survey. An empty surveyID spans all surveys.
	ListDueEntries(ctx context.Context, surveyID string) ([]DueItemRecord, error)
	CountPendingEntries(ctx context.Context) (int, error)
}

// DirectoryStore is the recipient-store boundary consumed by resolution and
// dispatch. It is read-only from the campaign engine's perspective.
type DirectoryStore interface {
	FindRespondentsByIDs(ctx context.Context, respondentIDs []string) ([]RespondentRecord, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// SurveyStore is the survey catalog boundary.
type SurveyStore interface {
	GetSurvey(ctx context.Context, surveyID string) (SurveyRecord, error)
	ListActiveSurveys(ctx context.Context) ([]SurveyRecord, error)
}

// ResponseStore answers completed-response lookups used to suppress
// redundant notifications.
type ResponseStore interface {
	CompletedRespondentIDs(ctx context.Context, surveyID string) ([]string, error)
}
