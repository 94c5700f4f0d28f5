package domain

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/surveycast/internal/platform/id"
)

// Store is the domain persistence boundary for invitation ledgers.
type Store interface {
	GetLedger(ctx context.Context, surveyID string) (Ledger, error)
	PutLedger(ctx context.Context, ledger Ledger) error
	ReplaceEntitlement(ctx context.Context, surveyID string, respondentIDs []string, groupIDs []string) error
	UpsertEntries(ctx context.Context, surveyID string, entries []Entry) error
	DeleteEntries(ctx context.Context, surveyID string, respondentIDs []string) error
	UpdateEntryStatus(ctx context.Context, surveyID string, respondentID string, status Status, sentAt *time.Time, attempts int, lastError string) error
	ListDue(ctx context.Context, surveyID string) ([]DueItem, error)
	CountPending(ctx context.Context) (int, error)
}

// Directory is the recipient-store boundary. Group membership is re-expanded
// on every resolution because groups mutate independently of any ledger.
type Directory interface {
	FindRespondentsByIDs(ctx context.Context, respondentIDs []string) ([]Respondent, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// SurveyCatalog is the survey collaborator boundary.
type SurveyCatalog interface {
	GetSurvey(ctx context.Context, surveyID string) (Survey, error)
	ListActiveSurveys(ctx context.Context) ([]Survey, error)
}

// ExpansionWarning records one group that could not be expanded during
// best-effort resolution.
type ExpansionWarning struct {
	GroupID string
	Err     error
}

// Service orchestrates recipient resolution and ledger reconciliation.
type Service struct {
	store      Store
	directory  Directory
	surveys    SurveyCatalog
	dispatcher *Dispatcher
	clock      func() time.Time
	logf       func(format string, args ...any)
}

// NewService constructs recipient-resolution use-cases.
func NewService(store Store, directory Directory, surveys SurveyCatalog, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:     store,
		directory: directory,
		surveys:   surveys,
		clock:     clock,
		logf:      log.Printf,
	}
}

// AttachDispatcher enables eager fire-and-forget dispatch after merges on
// live surveys.
func (s *Service) AttachDispatcher(dispatcher *Dispatcher) {
	if s == nil {
		return
	}
	s.dispatcher = dispatcher
}

// MergeRecipients replaces the survey's entitlement sets and reconciles its
// invitation entries. Malformed and duplicate IDs are discarded; groups that
// fail to expand are skipped with a warning. Reconciliation is idempotent and
// status-preserving: respondents already tracked keep their entry untouched,
// newly entitled respondents gain a pending entry, and entries for respondents
// no longer entitled are pruned.
func (s *Service) MergeRecipients(ctx context.Context, surveyID string, respondentIDs []string, groupIDs []string) (Ledger, error) {
	if s == nil || s.store == nil {
		return Ledger{}, ErrStoreNotConfigured
	}
	if s.directory == nil {
		return Ledger{}, ErrDirectoryNotConfigured
	}
	surveyID, err := normalizeSurveyID(surveyID)
	if err != nil {
		return Ledger{}, err
	}
	survey, err := s.surveys.GetSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Ledger{}, ErrSurveyNotFound
		}
		return Ledger{}, err
	}

	respondents := validIDs(respondentIDs)
	groups := validIDs(groupIDs)

	ledger, err := s.loadOrCreateLedger(ctx, surveyID)
	if err != nil {
		return Ledger{}, err
	}

	members, warnings := s.expandGroups(ctx, groups)
	s.logWarnings(surveyID, warnings)

	now := s.nowUTC()
	entitled := ResolveEntitled(respondents, members)
	reconciled := ReconcileEntries(ledger.Entries, entitled, now)
	if len(warnings) > 0 {
		// A group that failed to expand contributes no members to the
		// entitled set, so pruning now would drop its entries and re-invite
		// those respondents once expansion recovers. Retain instead.
		reconciled = retainEntries(ledger.Entries, reconciled)
	}
	ledger.Respondents = respondents
	ledger.Groups = groups
	ledger.Entries = reconciled
	ledger.UpdatedAt = now
	if ledger.CreatedAt.IsZero() {
		ledger.CreatedAt = now
	}

	if err := s.store.PutLedger(ctx, ledger); err != nil {
		return Ledger{}, err
	}

	if survey.Active() && s.dispatcher != nil {
		dispatcher := s.dispatcher
		dispatchCtx := context.WithoutCancel(ctx)
		go func() {
			if _, err := dispatcher.SendPending(dispatchCtx, surveyID, 0); err != nil {
				s.logf("eager dispatch survey=%s: %v", surveyID, err)
			}
		}()
	}
	return ledger, nil
}

// AddRespondents adds individually-assigned respondents to the entitlement
// set and creates pending entries for any respondent not already entitled.
func (s *Service) AddRespondents(ctx context.Context, surveyID string, respondentIDs []string) (Ledger, error) {
	return s.applyEntitlementChange(ctx, surveyID, func(ledger Ledger) ([]string, []string) {
		return unionIDs(ledger.Respondents, validIDs(respondentIDs)), ledger.Groups
	})
}

// RemoveRespondents removes individually-assigned respondents. Entries are
// deleted only for respondents no longer entitled via any retained group.
func (s *Service) RemoveRespondents(ctx context.Context, surveyID string, respondentIDs []string) (Ledger, error) {
	return s.applyEntitlementChange(ctx, surveyID, func(ledger Ledger) ([]string, []string) {
		return subtractIDs(ledger.Respondents, validIDs(respondentIDs)), ledger.Groups
	})
}

// AddGroups adds allowed groups and creates pending entries for members not
// already entitled.
func (s *Service) AddGroups(ctx context.Context, surveyID string, groupIDs []string) (Ledger, error) {
	return s.applyEntitlementChange(ctx, surveyID, func(ledger Ledger) ([]string, []string) {
		return ledger.Respondents, unionIDs(ledger.Groups, validIDs(groupIDs))
	})
}

// RemoveGroups removes allowed groups. The full entitled set is recomputed
// from the remaining sources before deciding which entries to drop, so a
// member of a removed group who is still individually assigned, or reachable
// through another retained group, keeps their entry.
func (s *Service) RemoveGroups(ctx context.Context, surveyID string, groupIDs []string) (Ledger, error) {
	return s.applyEntitlementChange(ctx, surveyID, func(ledger Ledger) ([]string, []string) {
		return ledger.Respondents, subtractIDs(ledger.Groups, validIDs(groupIDs))
	})
}

// PendingCount reports how many invitation entries are awaiting dispatch
// across all surveys.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	return s.store.CountPending(ctx)
}

// applyEntitlementChange runs one incremental set operation and re-triggers
// reconciliation for the affected respondents only, using entry-scoped store
// operations instead of a whole-ledger replace.
func (s *Service) applyEntitlementChange(ctx context.Context, surveyID string, change func(Ledger) ([]string, []string)) (Ledger, error) {
	if s == nil || s.store == nil {
		return Ledger{}, ErrStoreNotConfigured
	}
	if s.directory == nil {
		return Ledger{}, ErrDirectoryNotConfigured
	}
	surveyID, err := normalizeSurveyID(surveyID)
	if err != nil {
		return Ledger{}, err
	}
	ledger, err := s.loadOrCreateLedger(ctx, surveyID)
	if err != nil {
		return Ledger{}, err
	}

	respondents, groups := change(ledger)
	members, warnings := s.expandGroups(ctx, groups)
	s.logWarnings(surveyID, warnings)

	now := s.nowUTC()
	entitled := ResolveEntitled(respondents, members)
	reconciled := ReconcileEntries(ledger.Entries, entitled, now)
	if len(warnings) > 0 {
		reconciled = retainEntries(ledger.Entries, reconciled)
	}

	added := make([]Entry, 0)
	kept := make(map[string]struct{}, len(reconciled))
	for _, entry := range reconciled {
		kept[entry.RespondentID] = struct{}{}
		if _, existed := ledger.Entry(entry.RespondentID); !existed {
			added = append(added, entry)
		}
	}
	removed := make([]string, 0)
	for _, entry := range ledger.Entries {
		if _, ok := kept[entry.RespondentID]; !ok {
			removed = append(removed, entry.RespondentID)
		}
	}

	if err := s.store.ReplaceEntitlement(ctx, surveyID, respondents, groups); err != nil {
		return Ledger{}, err
	}
	if len(added) > 0 {
		if err := s.store.UpsertEntries(ctx, surveyID, added); err != nil {
			return Ledger{}, err
		}
	}
	if len(removed) > 0 {
		if err := s.store.DeleteEntries(ctx, surveyID, removed); err != nil {
			return Ledger{}, err
		}
	}

	ledger.Respondents = respondents
	ledger.Groups = groups
	ledger.Entries = reconciled
	ledger.UpdatedAt = now
	return ledger, nil
}

// retainEntries appends entries from existing whose respondents are absent
// from reconciled. Entitlement for those respondents could not be recomputed
// this cycle, so their lifecycle state survives until expansion succeeds.
func retainEntries(existing, reconciled []Entry) []Entry {
	kept := make(map[string]struct{}, len(reconciled))
	for _, entry := range reconciled {
		kept[entry.RespondentID] = struct{}{}
	}
	for _, entry := range existing {
		if _, ok := kept[entry.RespondentID]; !ok {
			reconciled = append(reconciled, entry)
		}
	}
	return reconciled
}

func (s *Service) loadOrCreateLedger(ctx context.Context, surveyID string) (Ledger, error) {
	ledger, err := s.store.GetLedger(ctx, surveyID)
	if err == nil {
		return ledger, nil
	}
	if errors.Is(err, ErrLedgerNotFound) || errors.Is(err, ErrNotFound) {
		return Ledger{SurveyID: surveyID}, nil
	}
	return Ledger{}, err
}

// expandGroups queries membership for each group independently. A group that
// disappears or errors is skipped; resolution is best-effort, not
// all-or-nothing.
func (s *Service) expandGroups(ctx context.Context, groupIDs []string) (map[string][]string, []ExpansionWarning) {
	members := make(map[string][]string, len(groupIDs))
	var warnings []ExpansionWarning
	for _, groupID := range groupIDs {
		groupMembers, err := s.directory.ListGroupMembers(ctx, groupID)
		if err != nil {
			warnings = append(warnings, ExpansionWarning{GroupID: groupID, Err: err})
			continue
		}
		members[groupID] = groupMembers
	}
	return members, warnings
}

func (s *Service) logWarnings(surveyID string, warnings []ExpansionWarning) {
	if s.logf == nil {
		return
	}
	for _, warning := range warnings {
		s.logf("resolve recipients survey=%s: skip group %s: %v", surveyID, warning.GroupID, warning.Err)
	}
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func normalizeSurveyID(surveyID string) (string, error) {
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return "", ErrEmptySurveyID
	}
	if !id.Valid(surveyID) {
		return "", ErrInvalidSurveyID
	}
	return surveyID, nil
}

// validIDs trims, validates, and de-duplicates raw identifier input while
// preserving first-seen order.
func validIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	valid := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if !id.Valid(value) {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		valid = append(valid, value)
	}
	return valid
}

func unionIDs(existing []string, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	union := make([]string, 0, len(existing)+len(added))
	for _, value := range existing {
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		union = append(union, value)
	}
	for _, value := range added {
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		union = append(union, value)
	}
	return union
}

func subtractIDs(existing []string, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, value := range removed {
		drop[value] = struct{}{}
	}
	remaining := make([]string, 0, len(existing))
	for _, value := range existing {
		if _, ok := drop[value]; ok {
			continue
		}
		remaining = append(remaining, value)
	}
	return remaining
}
