// Package capability mints and verifies the short-lived signed tokens that
// authorize tool calls made on behalf of a run. The same issuer type signs
// the bearer tokens accepted by the gateway.
package capability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret     = errors.New("capability secret not configured")
	ErrInvalidToken = errors.New("invalid capability token")
)

// ScopeGenerate authorizes calls to the generation endpoints.
const ScopeGenerate = "studio:generate"

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	RunID     string
	ProjectID string
	Scopes    []string
	ExpiresAt time.Time
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. ttl <= 0 defaults to one hour.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// RandomSecret returns a hex secret suitable for a process-local issuer.
func RandomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Mint issues a run-scoped token for subject.
func (i *Issuer) Mint(subject, runID, projectID string, scopes ...string) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}
	if runID != "" {
		claims["run"] = runID
	}
	if projectID != "" {
		claims["project"] = projectID
	}
	if len(scopes) > 0 {
		claims["scopes"] = scopes
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a token.
func (i *Issuer) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) { return i.secret, nil }, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &Claims{Subject: sub}
	claims.RunID, _ = mc["run"].(string)
	claims.ProjectID, _ = mc["project"].(string)
	claims.Scopes = scopesOf(mc["scopes"])
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

func scopesOf(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}

type subjectKey struct{}

// WithSubject stores the authenticated subject in ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok && s != ""
}
