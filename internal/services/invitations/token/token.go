// Package token signs and verifies the access tokens embedded in invitation
// links.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/surveycast/internal/platform/errors"
	"github.com/louisbranch/surveycast/internal/platform/id"
)

// accessTokenEnv holds raw env values before post-parse validation.
type accessTokenEnv struct {
	Issuer     string        `env:"SURVEYCAST_ACCESS_TOKEN_ISSUER"`
	Audience   string        `env:"SURVEYCAST_ACCESS_TOKEN_AUDIENCE"`
	PrivateKey string        `env:"SURVEYCAST_ACCESS_TOKEN_PRIVATE_KEY"`
	TTL        time.Duration `env:"SURVEYCAST_ACCESS_TOKEN_TTL"         envDefault:"720h"`
}

// Config defines how access tokens are signed and verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PrivateKey
	TTL      time.Duration
	Now      func() time.Time
	NewID    func() (string, error)
}

// Claims captures validated access token claims.
type Claims struct {
	Issuer       string
	Audience     []string
	ExpiresAt    time.Time
	IssuedAt     time.Time
	JWTID        string
	SurveyID     string
	RespondentID string
}

// accessTokenClaims is the internal claims type used for JWT encoding.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	SurveyID     string `json:"survey_id"`
	RespondentID string `json:"respondent_id"`
}

// LoadConfigFromEnv reads access token signing configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw accessTokenEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse access token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	privateKey := strings.TrimSpace(raw.PrivateKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("SURVEYCAST_ACCESS_TOKEN_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("SURVEYCAST_ACCESS_TOKEN_AUDIENCE is required")
	}
	if privateKey == "" {
		return Config{}, fmt.Errorf("SURVEYCAST_ACCESS_TOKEN_PRIVATE_KEY is required")
	}
	keyBytes, err := decodeBase64(privateKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode access token private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return Config{}, fmt.Errorf("access token private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if raw.TTL <= 0 {
		return Config{}, fmt.Errorf("access token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PrivateKey(keyBytes),
		TTL:      raw.TTL,
		Now:      now,
		NewID:    id.NewID,
	}, nil
}

// Issuer mints signed access tokens scoped to one survey and respondent.
type Issuer struct {
	cfg Config
}

// NewIssuer validates the configuration and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("access token issuer and audience are required")
	}
	if len(cfg.Key) != ed25519.PrivateKeySize {
		return nil, errors.New("access token signer is not configured")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue signs one access token for a survey and respondent pair.
func (i *Issuer) Issue(surveyID string, respondentID string) (string, error) {
	surveyID = strings.TrimSpace(surveyID)
	respondentID = strings.TrimSpace(respondentID)
	if surveyID == "" {
		return "", errors.New("survey id is required")
	}
	if respondentID == "" {
		return "", errors.New("respondent id is required")
	}

	jti, err := i.cfg.NewID()
	if err != nil {
		return "", fmt.Errorf("generate access token id: %w", err)
	}
	now := i.cfg.Now().UTC()
	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		SurveyID:     surveyID,
		RespondentID: respondentID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// PublicKey returns the verification key for the issuer's signing key.
func (i *Issuer) PublicKey() ed25519.PublicKey {
	return i.cfg.Key.Public().(ed25519.PublicKey)
}

// VerifierConfig defines how access tokens are verified.
type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Verify parses an access token and validates its claims.
func Verify(tokenValue string, cfg VerifierConfig) (Claims, error) {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessTokenInvalid, "access token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("access token verifier is not configured")
	}

	var parsed accessTokenClaims
	_, err := jwt.ParseWithClaims(tokenValue, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeAccessTokenInvalid,
			"access token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeAccessTokenInvalid,
			"access token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessTokenInvalid, "access token jti is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeAccessTokenInvalid, "access token exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeAccessTokenExpired, "access token is expired")
	}
	if strings.TrimSpace(parsed.SurveyID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessTokenInvalid, "access token survey_id is required")
	}
	if strings.TrimSpace(parsed.RespondentID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessTokenInvalid, "access token respondent_id is required")
	}

	claims := Claims{
		Issuer:       parsed.Issuer,
		Audience:     []string(parsed.Audience),
		ExpiresAt:    exp,
		JWTID:        parsed.ID,
		SurveyID:     parsed.SurveyID,
		RespondentID: parsed.RespondentID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAccessTokenInvalid, "access token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAccessTokenInvalid, "access token alg is invalid")
	}
	return apperrors.New(apperrors.CodeAccessTokenInvalid, "access token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
