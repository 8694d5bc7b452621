package usertoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Config configures access-token verification against the identity backend.
type Config struct {
	// Secret is the backend's shared HS256 signing secret.
	Secret string
	// Audience, when set, must match the token "aud" claim. Empty skips the
	// audience check, mirroring the backend's default behavior.
	Audience string
	Leeway   time.Duration
}

// Verifier validates bearer tokens issued by the identity backend (HS256)
// and exposes the decoded claim set.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a signing secret")
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   leeway,
	}, nil
}

// VerifyClaims validates the token signature and registered claims and
// returns the full decoded claim map.
func (v *Verifier) VerifyClaims(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return map[string]any(claims), nil
}

// ExtractUserID pulls a stable user identifier from a decoded claim map.
// Resolution order: subject claim, explicit user_id claim, then a nested
// user object's id field. First non-empty match wins, stringified.
func ExtractUserID(claims map[string]any) (string, bool) {
	candidates := []any{claims["sub"], claims["user_id"]}
	if user, ok := claims["user"].(map[string]any); ok {
		candidates = append(candidates, user["id"])
	}
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(candidate))
		if id != "" {
			return id, true
		}
	}
	return "", false
}
