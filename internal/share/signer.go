package share

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const defaultTokenTTL = 90 * 24 * time.Hour

// ErrInvalidToken is returned for expired, malformed, or foreign tokens.
var ErrInvalidToken = errors.New("invalid share token")

// Signer mints and verifies the signed tokens embedded in share links. The
// budget id travels as the subject claim; no other state is carried, so a
// shared link always shows the budget's current pinned history.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// SignerConfig configures a Signer.
type SignerConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

// NewSigner constructs a Signer with sane defaults.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("share: secret is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "gamma-budget-planner"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "budget-share"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Signer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      now,
	}, nil
}

// Mint produces a signed share token for the budget.
func (s *Signer) Mint(budgetID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewBuilder().
		Subject(budgetID.String()).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("building share token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing share token: %w", err)
	}
	return string(signed), expiresAt, nil
}

// Verify parses the token and returns the budget id it references.
func (s *Signer) Verify(raw string) (uuid.UUID, error) {
	parsed, err := jwt.ParseString(
		strings.TrimSpace(raw),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
