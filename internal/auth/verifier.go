// Package auth resolves a Supabase access token to the user it belongs to.
//
// Tokens are checked for shape locally (three-part JWT with a subject) and
// then confirmed with exactly one call to the Supabase auth server. Nothing
// is cached.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/buildingpulse/push-fanout/internal/fanout"
)

const userPath = "/auth/v1/user"

// Verifier checks bearer credentials against the Supabase auth server.
type Verifier struct {
	userURL    string
	anonKey    string
	httpClient *http.Client
	parser     *jwt.Parser
	logger     *slog.Logger
}

// NewVerifier creates a verifier for the project at supabaseURL.
func NewVerifier(supabaseURL, anonKey string, timeout time.Duration, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{
		userURL:    strings.TrimRight(supabaseURL, "/") + userPath,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
		parser:     jwt.NewParser(),
		logger:     logger.With("component", "auth"),
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", fanout.ErrUnauthenticated)
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected bearer credential", fanout.ErrUnauthenticated)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer credential", fanout.ErrUnauthenticated)
	}
	return token, nil
}

// CheckSyntax rejects credentials that cannot be a user session token:
// anything that does not decode as a JWT, or one without a subject (such as
// the project's anon key).
func (v *Verifier) CheckSyntax(credential string) error {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(credential, claims); err != nil {
		return fmt.Errorf("%w: malformed token", fanout.ErrUnauthenticated)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return fmt.Errorf("%w: token has no subject", fanout.ErrUnauthenticated)
	}
	return nil
}

// userResponse is the subset of the auth server's user object we read.
type userResponse struct {
	ID string `json:"id"`
}

// Verify returns the user ID for credential. Rejections by the auth server
// wrap fanout.ErrUnauthenticated; an unreachable or failing auth server
// wraps fanout.ErrBackend.
func (v *Verifier) Verify(ctx context.Context, credential string) (string, error) {
	if err := v.CheckSyntax(credential); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build auth request: %w", fanout.ErrBackend, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth server: %w", fanout.ErrBackend, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		v.logger.Warn("auth server error", "status", resp.StatusCode)
		return "", fmt.Errorf("%w: auth server returned %d", fanout.ErrBackend, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: invalid user token", fanout.ErrUnauthenticated)
	}

	var user userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return "", fmt.Errorf("%w: decode auth response: %w", fanout.ErrBackend, err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: invalid user token", fanout.ErrUnauthenticated)
	}
	return user.ID, nil
}
