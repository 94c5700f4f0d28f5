package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/surveycast/internal/platform/errors"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_ISSUER", "")
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_AUDIENCE", "")
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_PRIVATE_KEY", "")

	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected error when env vars are missing")
	}

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	t.Setenv("SURVEYCAST_ACCESS_TOKEN_ISSUER", "surveycast")
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_AUDIENCE", "survey-portal")
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_PRIVATE_KEY", base64.RawStdEncoding.EncodeToString(privKey))

	cfg, err := LoadConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load access token config: %v", err)
	}
	if cfg.Issuer != "surveycast" || cfg.Audience != "survey-portal" {
		t.Fatal("expected issuer and audience to be loaded")
	}
	if len(cfg.Key) != ed25519.PrivateKeySize {
		t.Fatalf("expected private key size %d", ed25519.PrivateKeySize)
	}
	if cfg.TTL != 720*time.Hour {
		t.Fatalf("ttl = %v, want default 720h", cfg.TTL)
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	signed, err := issuer.Issue("survey-1", "resp-a")
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	claims, err := Verify(signed, VerifierConfig{
		Issuer:   "surveycast",
		Audience: "survey-portal",
		Key:      issuer.PublicKey(),
		Now:      fixedClock(time.Date(2026, 8, 12, 9, 5, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.SurveyID != "survey-1" || claims.RespondentID != "resp-a" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.JWTID == "" {
		t.Fatal("expected jti claim")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Fatalf("exp %v not after iat %v", claims.ExpiresAt, claims.IssuedAt)
	}
}

func TestIssueRequiresSubjectIDs(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	if _, err := issuer.Issue("", "resp-a"); err == nil {
		t.Fatal("expected empty survey id error")
	}
	if _, err := issuer.Issue("survey-1", " "); err == nil {
		t.Fatal("expected empty respondent id error")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	signed, err := issuer.Issue("survey-1", "resp-a")
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	_, err = Verify(signed, VerifierConfig{
		Issuer:   "surveycast",
		Audience: "survey-portal",
		Key:      issuer.PublicKey(),
		Now:      fixedClock(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)),
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeAccessTokenExpired, "access token is expired")) {
		t.Fatalf("verify expired token error = %v, want expired code", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	signed, err := issuer.Issue("survey-1", "resp-a")
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, err = Verify(signed, VerifierConfig{
		Issuer:   "surveycast",
		Audience: "survey-portal",
		Key:      otherPub,
		Now:      fixedClock(time.Date(2026, 8, 12, 9, 5, 0, 0, time.UTC)),
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeAccessTokenInvalid, "")) {
		t.Fatalf("verify with wrong key error = %v, want invalid code", err)
	}
}

func TestVerifyRejectsAudienceMismatch(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	signed, err := issuer.Issue("survey-1", "resp-a")
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	_, err = Verify(signed, VerifierConfig{
		Issuer:   "surveycast",
		Audience: "other-portal",
		Key:      issuer.PublicKey(),
		Now:      fixedClock(time.Date(2026, 8, 12, 9, 5, 0, 0, time.UTC)),
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeAccessTokenInvalid, "")) {
		t.Fatalf("verify with wrong audience error = %v, want invalid code", err)
	}
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer, err := NewIssuer(Config{
		Issuer:   "surveycast",
		Audience: "survey-portal",
		Key:      privKey,
		TTL:      30 * 24 * time.Hour,
		Now:      fixedClock(time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
