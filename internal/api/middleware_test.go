package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func TestIPLimiter_EvictsIdleClients(t *testing.T) {
	l := newIPLimiter(10, time.Minute)
	clock := time.Now()
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	first := l.getLimiter("10.0.0.1")
	l.getLimiter("10.0.0.2")
	require.Equal(t, 2, l.size())

	// 10.0.0.1 stays active, 10.0.0.2 goes quiet.
	clock = clock.Add(40 * time.Second)
	assert.Same(t, first, l.getLimiter("10.0.0.1"))

	clock = clock.Add(30 * time.Second)
	l.getLimiter("10.0.0.3")
	assert.Equal(t, 2, l.size())
	assert.Same(t, first, l.getLimiter("10.0.0.1"))

	clock = clock.Add(2 * time.Minute)
	l.getLimiter("10.0.0.4")
	assert.Equal(t, 1, l.size())
}

func TestTimingMiddleware_PreservesFlusher(t *testing.T) {
	h := TimingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok)
		_, _ = w.Write([]byte("chunk"))
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, rec.Flushed)
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
	assert.Equal(t, "chunk", rec.Body.String())
}
