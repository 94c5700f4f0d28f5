package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/surveycast/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for invitation campaign state.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an invitation campaign SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

func (s *Store) nowUTC() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sqlite db is required")
	}
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// GetLedger loads one survey's entitlement sets and invitation entries.
func (s *Store) GetLedger(ctx context.Context, surveyID string) (storage.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.LedgerRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LedgerRecord{}, fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return storage.LedgerRecord{}, fmt.Errorf("survey id is required")
	}

	var record storage.LedgerRecord
	var createdAt int64
	var updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT survey_id, created_at, updated_at
FROM invitation_ledgers
WHERE survey_id = ?
`, surveyID)
	if err := row.Scan(&record.SurveyID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LedgerRecord{}, storage.ErrNotFound
		}
		return storage.LedgerRecord{}, fmt.Errorf("get ledger: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)

	respondentIDs, err := s.collectIDs(ctx, `
SELECT respondent_id FROM ledger_respondents WHERE survey_id = ? ORDER BY respondent_id ASC
`, surveyID)
	if err != nil {
		return storage.LedgerRecord{}, fmt.Errorf("list ledger respondents: %w", err)
	}
	record.RespondentIDs = respondentIDs

	groupIDs, err := s.collectIDs(ctx, `
SELECT group_id FROM ledger_groups WHERE survey_id = ? ORDER BY group_id ASC
`, surveyID)
	if err != nil {
		return storage.LedgerRecord{}, fmt.Errorf("list ledger groups: %w", err)
	}
	record.GroupIDs = groupIDs

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT survey_id, respondent_id, status, attempts, last_error, sent_at, created_at, updated_at
FROM invitation_entries
WHERE survey_id = ?
ORDER BY respondent_id ASC
`, surveyID)
	if err != nil {
		return storage.LedgerRecord{}, fmt.Errorf("list invitation entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		entry, scanErr := scanEntry(rows.Scan)
		if scanErr != nil {
			return storage.LedgerRecord{}, fmt.Errorf("scan invitation entry row: %w", scanErr)
		}
		record.Entries = append(record.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return storage.LedgerRecord{}, fmt.Errorf("iterate invitation entry rows: %w", err)
	}
	return record, nil
}

// PutLedger atomically replaces one survey's entitlement sets and reconciles
// its entry rows. Entry rows that already exist keep their lifecycle state;
// rows absent from the record are deleted.
func (s *Store) PutLedger(ctx context.Context, record storage.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeLedgerRecord(record)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback ledger write: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := ensureLedgerExec(ctx, tx, normalized.SurveyID, toMillis(normalized.CreatedAt), toMillis(normalized.UpdatedAt)); err != nil {
		return rollbackWith(err)
	}
	if err := replaceEntitlementExec(ctx, tx, normalized.SurveyID, normalized.RespondentIDs, normalized.GroupIDs); err != nil {
		return rollbackWith(err)
	}
	for _, entry := range normalized.Entries {
		if err := insertEntryExec(ctx, tx, entry); err != nil {
			return rollbackWith(err)
		}
	}
	if err := pruneEntriesExec(ctx, tx, normalized.SurveyID, normalized.Entries); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger write: %w", err)
	}
	return nil
}

// ReplaceEntitlement replaces only the entitlement sets, creating the ledger
// row when absent.
func (s *Store) ReplaceEntitlement(ctx context.Context, surveyID string, respondentIDs []string, groupIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return fmt.Errorf("survey id is required")
	}

	now := toMillis(s.nowUTC())
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entitlement write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback entitlement write: %v", cause, rollbackErr)
		}
		return cause
	}
	if err := ensureLedgerExec(ctx, tx, surveyID, now, now); err != nil {
		return rollbackWith(err)
	}
	if err := replaceEntitlementExec(ctx, tx, surveyID, respondentIDs, groupIDs); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entitlement write: %w", err)
	}
	return nil
}

// UpsertEntries inserts missing invitation entry rows. Existing rows keep
// their lifecycle state untouched so a concurrent status transition is never
// reset.
func (s *Store) UpsertEntries(ctx context.Context, surveyID string, entries []storage.EntryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return fmt.Errorf("survey id is required")
	}

	for _, entry := range entries {
		entry.SurveyID = surveyID
		normalized, err := normalizeEntryRecord(entry)
		if err != nil {
			return err
		}
		if err := insertEntryExec(ctx, s.sqlDB, normalized); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntries removes invitation entry rows for the given respondents.
func (s *Store) DeleteEntries(ctx context.Context, surveyID string, respondentIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return fmt.Errorf("survey id is required")
	}
	if len(respondentIDs) == 0 {
		return nil
	}

	query := `DELETE FROM invitation_entries WHERE survey_id = ? AND respondent_id IN (` + placeholders(len(respondentIDs)) + `)`
	args := make([]any, 0, len(respondentIDs)+1)
	args = append(args, surveyID)
	for _, respondentID := range respondentIDs {
		args = append(args, respondentID)
	}
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete invitation entries: %w", err)
	}
	return nil
}

// UpdateEntryStatus transitions one invitation entry row. The scoped
// single-row update is the unit of work for dispatch, so concurrent sweeps
// touching the same survey cannot clobber sibling entries.
func (s *Store) UpdateEntryStatus(ctx context.Context, surveyID string, respondentID string, status string, sentAt *time.Time, attempts int, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	respondentID = strings.TrimSpace(respondentID)
	status = strings.TrimSpace(status)
	if surveyID == "" {
		return fmt.Errorf("survey id is required")
	}
	if respondentID == "" {
		return fmt.Errorf("respondent id is required")
	}
	if status == "" {
		return fmt.Errorf("entry status is required")
	}
	if attempts < 0 {
		return fmt.Errorf("attempts must be non-negative")
	}

	var sentAtValue sql.NullInt64
	if sentAt != nil {
		sentAtValue = sql.NullInt64{Int64: toMillis(*sentAt), Valid: true}
	}
	now := s.nowUTC()
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE invitation_entries
SET status = ?, attempts = ?, last_error = ?, sent_at = ?, updated_at = ?
WHERE survey_id = ? AND respondent_id = ?
`, status, attempts, strings.TrimSpace(lastError), sentAtValue, toMillis(now), surveyID, respondentID)
	if err != nil {
		return fmt.Errorf("update invitation entry status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invitation entry status rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListDueEntries lists sendable entries joined with survey and respondent
// context: status pending or failed, survey live, respondent enabled and not
// archived, and no completed response recorded. An empty surveyID spans all
// surveys.
func (s *Store) ListDueEntries(ctx context.Context, surveyID string) ([]storage.DueItemRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT e.survey_id, s.slug, s.title, e.respondent_id, r.email, e.status, e.attempts
FROM invitation_entries e
JOIN surveys s ON s.id = e.survey_id
JOIN respondents r ON r.id = e.respondent_id
WHERE e.status IN (?, ?)
  AND s.status = ?
  AND r.enabled = 1
  AND r.archived = 0
  AND NOT EXISTS (
    SELECT 1 FROM survey_responses sr
    WHERE sr.survey_id = e.survey_id AND sr.respondent_id = e.respondent_id
  )
  AND (? = '' OR e.survey_id = ?)
ORDER BY e.survey_id ASC, e.respondent_id ASC
`, storage.EntryStatusPending, storage.EntryStatusFailed, storage.SurveyStatusLive, surveyID, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list due invitation entries: %w", err)
	}
	defer rows.Close()

	var due []storage.DueItemRecord
	for rows.Next() {
		var item storage.DueItemRecord
		if err := rows.Scan(&item.SurveyID, &item.SurveySlug, &item.SurveyTitle, &item.RespondentID, &item.Email, &item.Status, &item.Attempts); err != nil {
			return nil, fmt.Errorf("scan due invitation row: %w", err)
		}
		due = append(due, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due invitation rows: %w", err)
	}
	return due, nil
}

// CountPendingEntries counts pending entries for live surveys across all
// ledgers.
func (s *Store) CountPendingEntries(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var pendingCount int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM invitation_entries e
JOIN surveys s ON s.id = e.survey_id
WHERE e.status = ?
  AND s.status = ?
`, storage.EntryStatusPending, storage.SurveyStatusLive).Scan(&pendingCount); err != nil {
		return 0, fmt.Errorf("count pending invitation entries: %w", err)
	}
	return pendingCount, nil
}

// FindRespondentsByIDs loads respondent directory rows for the given IDs.
// Unknown IDs are silently absent from the result.
func (s *Store) FindRespondentsByIDs(ctx context.Context, respondentIDs []string) ([]storage.RespondentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if len(respondentIDs) == 0 {
		return nil, nil
	}

	query := `
SELECT id, email, display_name, enabled, archived, created_at, updated_at
FROM respondents
WHERE id IN (` + placeholders(len(respondentIDs)) + `)
ORDER BY id ASC`
	args := make([]any, 0, len(respondentIDs))
	for _, respondentID := range respondentIDs {
		args = append(args, respondentID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find respondents: %w", err)
	}
	defer rows.Close()

	var respondents []storage.RespondentRecord
	for rows.Next() {
		record, scanErr := scanRespondent(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan respondent row: %w", scanErr)
		}
		respondents = append(respondents, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate respondent rows: %w", err)
	}
	return respondents, nil
}

// ListGroupMembers lists one group's member respondent IDs. A missing group
// returns ErrNotFound so resolution can skip it with a warning.
func (s *Store) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	var found int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM respondent_groups WHERE id = ?`, groupID).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lookup group: %w", err)
	}
	return s.collectIDs(ctx, `
SELECT respondent_id FROM group_members WHERE group_id = ? ORDER BY respondent_id ASC
`, groupID)
}

// GetSurvey loads one survey catalog row.
func (s *Store) GetSurvey(ctx context.Context, surveyID string) (storage.SurveyRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SurveyRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SurveyRecord{}, fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return storage.SurveyRecord{}, fmt.Errorf("survey id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, slug, title, status, close_date, created_at, updated_at
FROM surveys
WHERE id = ?
`, surveyID)
	record, err := scanSurvey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SurveyRecord{}, storage.ErrNotFound
		}
		return storage.SurveyRecord{}, fmt.Errorf("get survey: %w", err)
	}
	return record, nil
}

// ListActiveSurveys lists surveys currently accepting responses.
func (s *Store) ListActiveSurveys(ctx context.Context) ([]storage.SurveyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, slug, title, status, close_date, created_at, updated_at
FROM surveys
WHERE status = ?
ORDER BY id ASC
`, storage.SurveyStatusLive)
	if err != nil {
		return nil, fmt.Errorf("list active surveys: %w", err)
	}
	defer rows.Close()

	var surveys []storage.SurveyRecord
	for rows.Next() {
		record, scanErr := scanSurvey(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan survey row: %w", scanErr)
		}
		surveys = append(surveys, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate survey rows: %w", err)
	}
	return surveys, nil
}

// CompletedRespondentIDs lists respondents who already completed the survey.
func (s *Store) CompletedRespondentIDs(ctx context.Context, surveyID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return nil, fmt.Errorf("survey id is required")
	}
	return s.collectIDs(ctx, `
SELECT respondent_id FROM survey_responses WHERE survey_id = ? ORDER BY respondent_id ASC
`, surveyID)
}

// PutSurvey upserts one survey catalog row.
func (s *Store) PutSurvey(ctx context.Context, record storage.SurveyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	record.Slug = strings.TrimSpace(record.Slug)
	record.Status = strings.TrimSpace(record.Status)
	if record.ID == "" {
		return fmt.Errorf("survey id is required")
	}
	if record.Slug == "" {
		return fmt.Errorf("survey slug is required")
	}
	if record.Status == "" {
		return fmt.Errorf("survey status is required")
	}

	var closeDate sql.NullInt64
	if record.CloseDate != nil {
		closeDate = sql.NullInt64{Int64: toMillis(*record.CloseDate), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
	INSERT INTO surveys (id, slug, title, status, close_date, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		slug = excluded.slug,
		title = excluded.title,
		status = excluded.status,
		close_date = excluded.close_date,
		updated_at = excluded.updated_at
	`, record.ID, record.Slug, record.Title, record.Status, closeDate, toMillis(record.CreatedAt), toMillis(record.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put survey: %w", err)
	}
	return nil
}

// PutRespondent upserts one respondent directory row.
func (s *Store) PutRespondent(ctx context.Context, record storage.RespondentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	record.Email = strings.TrimSpace(record.Email)
	if record.ID == "" {
		return fmt.Errorf("respondent id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
	INSERT INTO respondents (id, email, display_name, enabled, archived, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		email = excluded.email,
		display_name = excluded.display_name,
		enabled = excluded.enabled,
		archived = excluded.archived,
		updated_at = excluded.updated_at
	`, record.ID, record.Email, record.DisplayName, boolToInt(record.Enabled), boolToInt(record.Archived), toMillis(record.CreatedAt), toMillis(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put respondent: %w", err)
	}
	return nil
}

// PutGroup upserts one group row and replaces its membership.
func (s *Store) PutGroup(ctx context.Context, record storage.GroupRecord, memberIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("group id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback group write: %v", cause, rollbackErr)
		}
		return cause
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO respondent_groups (id, name, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		updated_at = excluded.updated_at
	`, record.ID, record.Name, toMillis(record.CreatedAt), toMillis(record.UpdatedAt)); err != nil {
		return rollbackWith(fmt.Errorf("put group: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, record.ID); err != nil {
		return rollbackWith(fmt.Errorf("clear group members: %w", err))
	}
	for _, memberID := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, respondent_id) VALUES (?, ?)
		ON CONFLICT(group_id, respondent_id) DO NOTHING
		`, record.ID, memberID); err != nil {
			return rollbackWith(fmt.Errorf("add group member: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group write: %w", err)
	}
	return nil
}

// DeleteGroup removes one group and its membership rows.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM respondent_groups WHERE id = ?`, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// PutResponse records one completed survey response.
func (s *Store) PutResponse(ctx context.Context, record storage.ResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.SurveyID = strings.TrimSpace(record.SurveyID)
	record.RespondentID = strings.TrimSpace(record.RespondentID)
	if record.SurveyID == "" {
		return fmt.Errorf("survey id is required")
	}
	if record.RespondentID == "" {
		return fmt.Errorf("respondent id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
	INSERT INTO survey_responses (survey_id, respondent_id, completed_at)
	VALUES (?, ?, ?)
	ON CONFLICT(survey_id, respondent_id) DO UPDATE SET
		completed_at = excluded.completed_at
	`, record.SurveyID, record.RespondentID, toMillis(record.CompletedAt))
	if err != nil {
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}

func (s *Store) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		ids = append(ids, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

type scanner func(dest ...any) error

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func normalizeLedgerRecord(record storage.LedgerRecord) (storage.LedgerRecord, error) {
	record.SurveyID = strings.TrimSpace(record.SurveyID)
	if record.SurveyID == "" {
		return storage.LedgerRecord{}, fmt.Errorf("survey id is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.LedgerRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.LedgerRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	normalizedEntries := make([]storage.EntryRecord, 0, len(record.Entries))
	for _, entry := range record.Entries {
		entry.SurveyID = record.SurveyID
		normalized, err := normalizeEntryRecord(entry)
		if err != nil {
			return storage.LedgerRecord{}, err
		}
		normalizedEntries = append(normalizedEntries, normalized)
	}
	record.Entries = normalizedEntries
	return record, nil
}

func normalizeEntryRecord(record storage.EntryRecord) (storage.EntryRecord, error) {
	record.SurveyID = strings.TrimSpace(record.SurveyID)
	record.RespondentID = strings.TrimSpace(record.RespondentID)
	record.Status = strings.TrimSpace(record.Status)
	record.LastError = strings.TrimSpace(record.LastError)
	if record.SurveyID == "" {
		return storage.EntryRecord{}, fmt.Errorf("survey id is required")
	}
	if record.RespondentID == "" {
		return storage.EntryRecord{}, fmt.Errorf("respondent id is required")
	}
	if record.Status == "" {
		return storage.EntryRecord{}, fmt.Errorf("entry status is required")
	}
	if record.Attempts < 0 {
		return storage.EntryRecord{}, fmt.Errorf("attempts must be non-negative")
	}
	if record.CreatedAt.IsZero() {
		return storage.EntryRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.EntryRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if record.SentAt != nil {
		sentAt := record.SentAt.UTC()
		record.SentAt = &sentAt
	}
	return record, nil
}

func ensureLedgerExec(ctx context.Context, execer sqlExecer, surveyID string, createdAt int64, updatedAt int64) error {
	if _, err := execer.ExecContext(ctx, `
	INSERT INTO invitation_ledgers (survey_id, created_at, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(survey_id) DO UPDATE SET
		updated_at = excluded.updated_at
	`, surveyID, createdAt, updatedAt); err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("ensure ledger row: %w", err)
	}
	return nil
}

func replaceEntitlementExec(ctx context.Context, execer sqlExecer, surveyID string, respondentIDs []string, groupIDs []string) error {
	if _, err := execer.ExecContext(ctx, `DELETE FROM ledger_respondents WHERE survey_id = ?`, surveyID); err != nil {
		return fmt.Errorf("clear ledger respondents: %w", err)
	}
	for _, respondentID := range respondentIDs {
		if _, err := execer.ExecContext(ctx, `
		INSERT INTO ledger_respondents (survey_id, respondent_id) VALUES (?, ?)
		ON CONFLICT(survey_id, respondent_id) DO NOTHING
		`, surveyID, respondentID); err != nil {
			return fmt.Errorf("add ledger respondent: %w", err)
		}
	}
	if _, err := execer.ExecContext(ctx, `DELETE FROM ledger_groups WHERE survey_id = ?`, surveyID); err != nil {
		return fmt.Errorf("clear ledger groups: %w", err)
	}
	for _, groupID := range groupIDs {
		if _, err := execer.ExecContext(ctx, `
		INSERT INTO ledger_groups (survey_id, group_id) VALUES (?, ?)
		ON CONFLICT(survey_id, group_id) DO NOTHING
		`, surveyID, groupID); err != nil {
			return fmt.Errorf("add ledger group: %w", err)
		}
	}
	return nil
}

func insertEntryExec(ctx context.Context, execer sqlExecer, record storage.EntryRecord) error {
	var sentAt sql.NullInt64
	if record.SentAt != nil {
		sentAt = sql.NullInt64{Int64: toMillis(*record.SentAt), Valid: true}
	}
	if _, err := execer.ExecContext(ctx, `
	INSERT INTO invitation_entries (
		survey_id, respondent_id, status, attempts, last_error, sent_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(survey_id, respondent_id) DO NOTHING
	`,
		record.SurveyID,
		record.RespondentID,
		record.Status,
		record.Attempts,
		record.LastError,
		sentAt,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	); err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert invitation entry: %w", err)
	}
	return nil
}

func pruneEntriesExec(ctx context.Context, execer sqlExecer, surveyID string, keep []storage.EntryRecord) error {
	if len(keep) == 0 {
		if _, err := execer.ExecContext(ctx, `DELETE FROM invitation_entries WHERE survey_id = ?`, surveyID); err != nil {
			return fmt.Errorf("prune invitation entries: %w", err)
		}
		return nil
	}
	query := `DELETE FROM invitation_entries WHERE survey_id = ? AND respondent_id NOT IN (` + placeholders(len(keep)) + `)`
	args := make([]any, 0, len(keep)+1)
	args = append(args, surveyID)
	for _, entry := range keep {
		args = append(args, entry.RespondentID)
	}
	if _, err := execer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune invitation entries: %w", err)
	}
	return nil
}

func scanEntry(scan scanner) (storage.EntryRecord, error) {
	var record storage.EntryRecord
	var sentAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.SurveyID,
		&record.RespondentID,
		&record.Status,
		&record.Attempts,
		&record.LastError,
		&sentAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.EntryRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if sentAt.Valid {
		value := fromMillis(sentAt.Int64)
		record.SentAt = &value
	}
	return record, nil
}

func scanSurvey(scan scanner) (storage.SurveyRecord, error) {
	var record storage.SurveyRecord
	var closeDate sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.Slug,
		&record.Title,
		&record.Status,
		&closeDate,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.SurveyRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if closeDate.Valid {
		value := fromMillis(closeDate.Int64)
		record.CloseDate = &value
	}
	return record, nil
}

func scanRespondent(scan scanner) (storage.RespondentRecord, error) {
	var record storage.RespondentRecord
	var enabled int
	var archived int
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.Email,
		&record.DisplayName,
		&enabled,
		&archived,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.RespondentRecord{}, err
	}
	record.Enabled = enabled == 1
	record.Archived = archived == 1
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func placeholders(count int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}

func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "foreign key constraint failed")
}
