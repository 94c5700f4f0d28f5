package domain

import (
	"sort"
	"time"
)

// Ledger is the per-survey persisted record of entitlement and invitation
// lifecycle. Respondents and Groups are the raw entitlement sets as assigned;
// Entries is the lifecycle projection of their resolved union.
type Ledger struct {
	SurveyID    string
	Respondents []string
	Groups      []string
	Entries     []Entry
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Entry returns the entry for a respondent, if present.
func (l Ledger) Entry(respondentID string) (Entry, bool) {
	for _, entry := range l.Entries {
		if entry.RespondentID == respondentID {
			return entry, true
		}
	}
	return Entry{}, false
}

// SurveyStatus identifies one survey lifecycle state.
type SurveyStatus string

const (
	// SurveyStatusDraft means the survey is still being authored.
	SurveyStatusDraft SurveyStatus = "draft"
	// SurveyStatusLive means the survey accepts responses and invitations
	// may be dispatched.
	SurveyStatusLive SurveyStatus = "live"
	// SurveyStatusClosed means the survey stopped accepting responses.
	SurveyStatusClosed SurveyStatus = "closed"
	// SurveyStatusArchived means the survey is retired.
	SurveyStatusArchived SurveyStatus = "archived"
)

// Survey is the catalog projection the campaign engine consumes.
type Survey struct {
	ID        string
	Slug      string
	Title     string
	Status    SurveyStatus
	CloseDate *time.Time
}

// Active reports whether invitations may be dispatched for the survey.
func (s Survey) Active() bool {
	return s.Status == SurveyStatusLive
}

// Respondent is the recipient-store projection the campaign engine consumes.
type Respondent struct {
	ID          string
	Email       string
	DisplayName string
	Enabled     bool
	Archived    bool
}

// Contactable reports whether the respondent may receive notifications.
func (r Respondent) Contactable() bool {
	return r.Enabled && !r.Archived
}

// ResolveEntitled computes the deduplicated union of individually-assigned
// respondents and group-derived members. The result is sorted so callers that
// diff or persist it behave deterministically. It is a pure function shared by
// the merge, removal, and dispatch paths.
func ResolveEntitled(respondentIDs []string, groupMembers map[string][]string) []string {
	seen := make(map[string]struct{}, len(respondentIDs))
	for _, respondentID := range respondentIDs {
		seen[respondentID] = struct{}{}
	}
	for _, members := range groupMembers {
		for _, respondentID := range members {
			seen[respondentID] = struct{}{}
		}
	}
	entitled := make([]string, 0, len(seen))
	for respondentID := range seen {
		entitled = append(entitled, respondentID)
	}
	sort.Strings(entitled)
	return entitled
}

// ReconcileEntries projects the entitled set onto an existing entry list.
// Entries for respondents still entitled keep their status untouched; newly
// entitled respondents get a pending entry; entries for respondents no longer
// entitled are pruned. Calling it twice with the same inputs yields the same
// result.
func ReconcileEntries(existing []Entry, entitled []string, now time.Time) []Entry {
	byRespondent := make(map[string]Entry, len(existing))
	for _, entry := range existing {
		if _, dup := byRespondent[entry.RespondentID]; dup {
			continue
		}
		byRespondent[entry.RespondentID] = entry
	}

	now = now.UTC()
	reconciled := make([]Entry, 0, len(entitled))
	for _, respondentID := range entitled {
		if entry, ok := byRespondent[respondentID]; ok {
			reconciled = append(reconciled, entry)
			continue
		}
		reconciled = append(reconciled, Entry{
			RespondentID: respondentID,
			Status:       StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return reconciled
}
