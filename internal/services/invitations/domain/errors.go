package domain

import (
	apperrors "github.com/louisbranch/surveycast/internal/platform/errors"
)

var (
	// ErrEmptySurveyID indicates a missing survey ID.
	ErrEmptySurveyID = apperrors.New(apperrors.CodeSurveyEmptyID, "survey id is required")
	// ErrInvalidSurveyID indicates a malformed survey ID.
	ErrInvalidSurveyID = apperrors.New(apperrors.CodeSurveyInvalidID, "survey id is malformed")
	// ErrSurveyNotFound indicates the survey does not exist.
	ErrSurveyNotFound = apperrors.New(apperrors.CodeSurveyNotFound, "survey not found")
	// ErrLedgerNotFound indicates no invitation ledger exists for the survey.
	ErrLedgerNotFound = apperrors.New(apperrors.CodeLedgerNotFound, "invitation ledger not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeUnknown, "invitation store is not configured")
	// ErrDirectoryNotConfigured indicates the service is missing recipient store wiring.
	ErrDirectoryNotConfigured = apperrors.New(apperrors.CodeUnknown, "recipient directory is not configured")
	// ErrConflict indicates a write conflicted with existing uniqueness constraints.
	ErrConflict = apperrors.New(apperrors.CodeConflict, "invitation conflict")
	// ErrNotFound indicates a requested record was not found.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
)
