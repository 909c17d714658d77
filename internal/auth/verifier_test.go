package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildingpulse/push-fanout/internal/auth"
	"github.com/buildingpulse/push-fanout/internal/fanout"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// authServer mimics GET /auth/v1/user, answering status with body.
func authServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestBearerToken(t *testing.T) {
	tok, err := auth.BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, err = auth.BearerToken("bearer   xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Bearer   ", "Basic dXNlcjpwYXNz", "abc.def.ghi"} {
		_, err := auth.BearerToken(h)
		assert.ErrorIs(t, err, fanout.ErrUnauthenticated, h)
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	userToken := signed(t, jwt.MapClaims{"sub": "user-1", "role": "authenticated"})

	t.Run("Valid token resolves user", func(t *testing.T) {
		srv, calls := authServer(t, http.StatusOK, `{"id":"user-1","aud":"authenticated"}`)
		v := auth.NewVerifier(srv.URL+"/", "anon-key", 0, newTestLogger())

		id, err := v.Verify(ctx, userToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Malformed token rejected without backend call", func(t *testing.T) {
		srv, calls := authServer(t, http.StatusOK, `{"id":"user-1"}`)
		v := auth.NewVerifier(srv.URL, "anon-key", 0, newTestLogger())

		_, err := v.Verify(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, fanout.ErrUnauthenticated)
		assert.Zero(t, calls.Load())
	})

	t.Run("Anon key rejected without backend call", func(t *testing.T) {
		srv, calls := authServer(t, http.StatusOK, `{"id":"user-1"}`)
		v := auth.NewVerifier(srv.URL, "anon-key", 0, newTestLogger())

		_, err := v.Verify(ctx, signed(t, jwt.MapClaims{"role": "anon"}))
		assert.ErrorIs(t, err, fanout.ErrUnauthenticated)
		assert.Zero(t, calls.Load())
	})

	t.Run("Unknown token rejected after one call", func(t *testing.T) {
		srv, calls := authServer(t, http.StatusUnauthorized, `{"msg":"invalid JWT"}`)
		v := auth.NewVerifier(srv.URL, "anon-key", 0, newTestLogger())

		_, err := v.Verify(ctx, userToken)
		assert.ErrorIs(t, err, fanout.ErrUnauthenticated)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("User without id rejected", func(t *testing.T) {
		srv, _ := authServer(t, http.StatusOK, `{}`)
		v := auth.NewVerifier(srv.URL, "anon-key", 0, newTestLogger())

		_, err := v.Verify(ctx, userToken)
		assert.ErrorIs(t, err, fanout.ErrUnauthenticated)
	})

	t.Run("Auth server outage is a backend error", func(t *testing.T) {
		srv, calls := authServer(t, http.StatusBadGateway, "upstream down")
		v := auth.NewVerifier(srv.URL, "anon-key", 0, newTestLogger())

		_, err := v.Verify(ctx, userToken)
		assert.ErrorIs(t, err, fanout.ErrBackend)
		assert.NotErrorIs(t, err, fanout.ErrUnauthenticated)
		assert.EqualValues(t, 1, calls.Load())
	})
}
