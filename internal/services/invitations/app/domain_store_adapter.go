package app

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/surveycast/internal/services/invitations/domain"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage"
)

type domainStoreAdapter struct {
	ledgerStore storage.LedgerStore
}

func newDomainStoreAdapter(ledgerStore storage.LedgerStore) *domainStoreAdapter {
	return &domainStoreAdapter{ledgerStore: ledgerStore}
}

func (a *domainStoreAdapter) GetLedger(ctx context.Context, surveyID string) (domain.Ledger, error) {
	if a == nil || a.ledgerStore == nil {
		return domain.Ledger{}, domain.ErrStoreNotConfigured
	}
	record, err := a.ledgerStore.GetLedger(ctx, surveyID)
	if err != nil {
		return domain.Ledger{}, mapStorageError(err)
	}
	return toDomainLedger(record), nil
}

func (a *domainStoreAdapter) PutLedger(ctx context.Context, ledger domain.Ledger) error {
	if a == nil || a.ledgerStore == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.ledgerStore.PutLedger(ctx, toStorageLedger(ledger)))
}

func (a *domainStoreAdapter) ReplaceEntitlement(ctx context.Context, surveyID string, respondentIDs []string, groupIDs []string) error {
	if a == nil || a.ledgerStore == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.ledgerStore.ReplaceEntitlement(ctx, surveyID, respondentIDs, groupIDs))
}

func (a *domainStoreAdapter) UpsertEntries(ctx context.Context, surveyID string, entries []domain.Entry) error {
	if a == nil || a.ledgerStore == nil {
		return domain.ErrStoreNotConfigured
	}
	records := make([]storage.EntryRecord, 0, len(entries))
	for _, entry := range entries {
		record := toStorageEntry(entry)
		record.SurveyID = surveyID
		records = append(records, record)
	}
	return mapStorageError(a.ledgerStore.UpsertEntries(ctx, surveyID, records))
}

func (a *domainStoreAdapter) DeleteEntries(ctx context.Context, surveyID string, respondentIDs []string) error {
	if a == nil || a.ledgerStore == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.ledgerStore.DeleteEntries(ctx, surveyID, respondentIDs))
}

func (a *domainStoreAdapter) UpdateEntryStatus(ctx context.Context, surveyID string, respondentID string, status domain.Status, sentAt *time.Time, attempts int, lastError string) error {
	if a == nil || a.ledgerStore == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.ledgerStore.UpdateEntryStatus(ctx, surveyID, respondentID, toStorageStatus(status), sentAt, attempts, lastError))
}

func (a *domainStoreAdapter) ListDue(ctx context.Context, surveyID string) ([]domain.DueItem, error) {
	if a == nil || a.ledgerStore == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.ledgerStore.ListDueEntries(ctx, surveyID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	items := make([]domain.DueItem, 0, len(records))
	for _, record := range records {
		items = append(items, domain.DueItem{
			SurveyID:     record.SurveyID,
			SurveySlug:   record.SurveySlug,
			SurveyTitle:  record.SurveyTitle,
			RespondentID: record.RespondentID,
			Email:        record.Email,
			Status:       toDomainStatus(record.Status),
			Attempts:     record.Attempts,
		})
	}
	return items, nil
}

func (a *domainStoreAdapter) CountPending(ctx context.Context) (int, error) {
	if a == nil || a.ledgerStore == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	pendingCount, err := a.ledgerStore.CountPendingEntries(ctx)
	if err != nil {
		return 0, mapStorageError(err)
	}
	return pendingCount, nil
}

type directoryAdapter struct {
	directoryStore storage.DirectoryStore
}

func newDirectoryAdapter(directoryStore storage.DirectoryStore) *directoryAdapter {
	return &directoryAdapter{directoryStore: directoryStore}
}

func (a *directoryAdapter) FindRespondentsByIDs(ctx context.Context, respondentIDs []string) ([]domain.Respondent, error) {
	if a == nil || a.directoryStore == nil {
		return nil, domain.ErrDirectoryNotConfigured
	}
	records, err := a.directoryStore.FindRespondentsByIDs(ctx, respondentIDs)
	if err != nil {
		return nil, mapStorageError(err)
	}
	respondents := make([]domain.Respondent, 0, len(records))
	for _, record := range records {
		respondents = append(respondents, domain.Respondent{
			ID:          record.ID,
			Email:       record.Email,
			DisplayName: record.DisplayName,
			Enabled:     record.Enabled,
			Archived:    record.Archived,
		})
	}
	return respondents, nil
}

func (a *directoryAdapter) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if a == nil || a.directoryStore == nil {
		return nil, domain.ErrDirectoryNotConfigured
	}
	members, err := a.directoryStore.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return members, nil
}

type surveyCatalogAdapter struct {
	surveyStore storage.SurveyStore
}

func newSurveyCatalogAdapter(surveyStore storage.SurveyStore) *surveyCatalogAdapter {
	return &surveyCatalogAdapter{surveyStore: surveyStore}
}

func (a *surveyCatalogAdapter) GetSurvey(ctx context.Context, surveyID string) (domain.Survey, error) {
	if a == nil || a.surveyStore == nil {
		return domain.Survey{}, domain.ErrStoreNotConfigured
	}
	record, err := a.surveyStore.GetSurvey(ctx, surveyID)
	if err != nil {
		return domain.Survey{}, mapStorageError(err)
	}
	return toDomainSurvey(record), nil
}

func (a *surveyCatalogAdapter) ListActiveSurveys(ctx context.Context) ([]domain.Survey, error) {
	if a == nil || a.surveyStore == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.surveyStore.ListActiveSurveys(ctx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	surveys := make([]domain.Survey, 0, len(records))
	for _, record := range records {
		surveys = append(surveys, toDomainSurvey(record))
	}
	return surveys, nil
}

type responseIndexAdapter struct {
	responseStore storage.ResponseStore
}

func newResponseIndexAdapter(responseStore storage.ResponseStore) *responseIndexAdapter {
	return &responseIndexAdapter{responseStore: responseStore}
}

func (a *responseIndexAdapter) CompletedRespondents(ctx context.Context, surveyID string) (map[string]struct{}, error) {
	if a == nil || a.responseStore == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	ids, err := a.responseStore.CompletedRespondentIDs(ctx, surveyID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	completed := make(map[string]struct{}, len(ids))
	for _, respondentID := range ids {
		completed[respondentID] = struct{}{}
	}
	return completed, nil
}

func toDomainLedger(record storage.LedgerRecord) domain.Ledger {
	entries := make([]domain.Entry, 0, len(record.Entries))
	for _, entry := range record.Entries {
		entries = append(entries, toDomainEntry(entry))
	}
	return domain.Ledger{
		SurveyID:    record.SurveyID,
		Respondents: record.RespondentIDs,
		Groups:      record.GroupIDs,
		Entries:     entries,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func toStorageLedger(ledger domain.Ledger) storage.LedgerRecord {
	entries := make([]storage.EntryRecord, 0, len(ledger.Entries))
	for _, entry := range ledger.Entries {
		record := toStorageEntry(entry)
		record.SurveyID = ledger.SurveyID
		entries = append(entries, record)
	}
	return storage.LedgerRecord{
		SurveyID:      ledger.SurveyID,
		RespondentIDs: ledger.Respondents,
		GroupIDs:      ledger.Groups,
		Entries:       entries,
		CreatedAt:     ledger.CreatedAt,
		UpdatedAt:     ledger.UpdatedAt,
	}
}

func toDomainEntry(record storage.EntryRecord) domain.Entry {
	return domain.Entry{
		RespondentID: record.RespondentID,
		Status:       toDomainStatus(record.Status),
		Attempts:     record.Attempts,
		LastError:    record.LastError,
		SentAt:       record.SentAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func toStorageEntry(entry domain.Entry) storage.EntryRecord {
	return storage.EntryRecord{
		RespondentID: entry.RespondentID,
		Status:       toStorageStatus(entry.Status),
		Attempts:     entry.Attempts,
		LastError:    entry.LastError,
		SentAt:       entry.SentAt,
		CreatedAt:    entry.CreatedAt,
		UpdatedAt:    entry.UpdatedAt,
	}
}

func toDomainSurvey(record storage.SurveyRecord) domain.Survey {
	return domain.Survey{
		ID:        record.ID,
		Slug:      record.Slug,
		Title:     record.Title,
		Status:    domain.SurveyStatus(record.Status),
		CloseDate: record.CloseDate,
	}
}

func toDomainStatus(label string) domain.Status {
	switch label {
	case storage.EntryStatusPending:
		return domain.StatusPending
	case storage.EntryStatusSent:
		return domain.StatusSent
	case storage.EntryStatusFailed:
		return domain.StatusFailed
	case storage.EntryStatusAbandoned:
		return domain.StatusAbandoned
	default:
		return domain.StatusUnspecified
	}
}

func toStorageStatus(status domain.Status) string {
	switch status {
	case domain.StatusSent:
		return storage.EntryStatusSent
	case domain.StatusFailed:
		return storage.EntryStatusFailed
	case domain.StatusAbandoned:
		return storage.EntryStatusAbandoned
	default:
		return storage.EntryStatusPending
	}
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict
	default:
		return err
	}
}
