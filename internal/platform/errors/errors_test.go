package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	base := New(CodeSurveyNotFound, "survey missing")
	wrapped := fmt.Errorf("load survey: %w", Wrap(CodeSurveyNotFound, "survey missing", errors.New("sql: no rows")))

	if !errors.Is(wrapped, base) {
		t.Fatal("expected wrapped error to match by code")
	}
	if errors.Is(wrapped, New(CodeLedgerNotFound, "ledger missing")) {
		t.Fatal("expected code mismatch to not match")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := Wrap(CodeGroupExpansionFailed, "expand group", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeSurveyEmptyID, codes.InvalidArgument},
		{CodeRespondentInvalidID, codes.InvalidArgument},
		{CodeSweepInvalidBatchSize, codes.InvalidArgument},
		{CodeSurveyNotLive, codes.FailedPrecondition},
		{CodeAccessTokenExpired, codes.FailedPrecondition},
		{CodeSurveyNotFound, codes.NotFound},
		{CodeLedgerNotFound, codes.NotFound},
		{CodeConflict, codes.AlreadyExists},
		{CodeGroupExpansionFailed, codes.Unavailable},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("GRPCCode(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusCarriesErrorInfo(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeGroupInvalidID, "group id is malformed", map[string]string{"GroupID": "nope"})
	stErr := err.ToGRPCStatus("en", "The group identifier is not valid.")

	st, ok := status.FromError(stErr)
	if !ok {
		t.Fatal("expected grpc status error")
	}
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("status code = %v, want InvalidArgument", st.Code())
	}

	var info *errdetails.ErrorInfo
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			info = d
		case *errdetails.LocalizedMessage:
			localized = d
		}
	}
	if info == nil {
		t.Fatal("expected ErrorInfo detail")
	}
	if info.Reason != string(CodeGroupInvalidID) {
		t.Fatalf("ErrorInfo reason = %q, want %q", info.Reason, CodeGroupInvalidID)
	}
	if info.Domain != Domain {
		t.Fatalf("ErrorInfo domain = %q, want %q", info.Domain, Domain)
	}
	if info.Metadata["GroupID"] != "nope" {
		t.Fatalf("ErrorInfo metadata = %v", info.Metadata)
	}
	if localized == nil || localized.Message != "The group identifier is not valid." {
		t.Fatalf("unexpected localized message: %v", localized)
	}
}
