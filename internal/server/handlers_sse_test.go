package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForClientCount(t *testing.T, srv *Server, userID string, expected int) {
	t.Helper()
	for ri := 0; ri < 1000; ri++ {
		if srv.hub.GetClientCount(userID) == expected {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients for user %s", expected, userID)
}

func TestSSE_MissingUserID(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSE_GlobalLimitRejectsConnection(t *testing.T) {
	srv := newTestServer(t, func(s *Server) {
		s.sseLimits = NewConnectionLimits(0, 10)
	})

	req := httptest.NewRequest(http.MethodGet, "/sse?userId=42", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSSE_PerUserCapRejectsBeforeStreamStarts(t *testing.T) {
	srv := newTestServer(t)

	// Saturate the per-user cap straight on the hub
	for {
		if err := srv.hub.Register("42", &streamRecorder{}); err != nil {
			break
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/sse?userId=42", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotContains(t, rec.Header().Get("Content-Type"), "text/event-stream")
}

func TestSSE_StreamsBroadcastsUntilClientLeaves(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/sse?userId=42", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.echo.ServeHTTP(rec, req)
	}()

	waitForClientCount(t, srv, "42", 1)

	testReq := httptest.NewRequest(http.MethodPost, "/api/test/cheer?userId=42", nil)
	testRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(testRec, testReq)
	require.Equal(t, http.StatusOK, testRec.Code)

	// Give the writer goroutine a moment to flush the frame, then hang up.
	// Unregister is synchronous, so reading the body afterwards is safe.
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SSE handler did not return after client disconnect")
	}

	assert.Equal(t, 0, srv.hub.GetClientCount("42"))
	assert.Equal(t, int64(0), srv.sseLimits.Current())

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.True(t, strings.HasPrefix(body, "data: {"))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"bitsCount":100`)
}

func TestTestEndpoints_RequireUserID(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/test/follow", "/api/test/subscribe", "/api/test/cheer"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestTestEndpoints_BodyOverridesDefaults(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"userId":"42","followerCount":777,"userName":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/test/follow", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"followerCount":777`)
	assert.Contains(t, rec.Body.String(), `"userName":"alice"`)
}

func TestTestEndpoints_DefaultSyntheticValues(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/test/subscribe?userId=42", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subscriberCount":1`)
	assert.Contains(t, rec.Body.String(), `"subscriberName":"test_subscriber"`)
}
