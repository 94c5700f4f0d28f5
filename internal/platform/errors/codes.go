// Package errors provides structured error handling with gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Survey errors
	CodeSurveyEmptyID   Code = "SURVEY_EMPTY_ID"
	CodeSurveyInvalidID Code = "SURVEY_INVALID_ID"
	CodeSurveyNotFound  Code = "SURVEY_NOT_FOUND"
	CodeSurveyNotLive   Code = "SURVEY_NOT_LIVE"

	// Ledger errors
	CodeLedgerNotFound      Code = "LEDGER_NOT_FOUND"
	CodeLedgerEmptySurveyID Code = "LEDGER_EMPTY_SURVEY_ID"

	// Recipient errors
	CodeRespondentInvalidID  Code = "RESPONDENT_INVALID_ID"
	CodeGroupInvalidID       Code = "GROUP_INVALID_ID"
	CodeGroupExpansionFailed Code = "GROUP_EXPANSION_FAILED"

	// Dispatch errors
	CodeDispatchInvalidConcurrency Code = "DISPATCH_INVALID_CONCURRENCY"
	CodeSweepInvalidBatchSize      Code = "SWEEP_INVALID_BATCH_SIZE"

	// Access token errors
	CodeAccessTokenInvalid Code = "ACCESS_TOKEN_INVALID"
	CodeAccessTokenExpired Code = "ACCESS_TOKEN_EXPIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeSurveyEmptyID,
		CodeSurveyInvalidID,
		CodeLedgerEmptySurveyID,
		CodeRespondentInvalidID,
		CodeGroupInvalidID,
		CodeDispatchInvalidConcurrency,
		CodeSweepInvalidBatchSize,
		CodeAccessTokenInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSurveyNotLive,
		CodeAccessTokenExpired:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeSurveyNotFound,
		CodeLedgerNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeConflict:
		return codes.AlreadyExists

	// Unavailable - dependency failures during best-effort resolution
	case CodeGroupExpansionFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
