package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	entry := logrus.New().WithField("test", "value")

	ctx := WithLogger(context.Background(), entry)
	assert.Equal(t, "value", FromContext(ctx).Data["test"])

	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextIDs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "sess-1", GetSessionID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetSessionID(context.Background()))
}

func TestWithRequest(t *testing.T) {
	logger := logrus.New()

	t.Run("keeps caller request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/player/play", nil)
		req.Header.Set(RequestIDHeader, "existing-id")

		entry := WithRequest(logger, req)
		assert.Equal(t, "existing-id", entry.Data["request_id"])
		assert.Equal(t, http.MethodPost, entry.Data["method"])
		assert.Equal(t, "/api/v1/player/play", entry.Data["path"])
	})

	t.Run("generates request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/player/state", nil)

		entry := WithRequest(logger, req)
		id, _ := entry.Data["request_id"].(string)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, req.Header.Get(RequestIDHeader))
	})
}

func TestRequestLoggerMiddleware(t *testing.T) {
	logger := logrus.New()

	var seen string
	handler := RequestLoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		assert.NotNil(t, FromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/player/stop", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotEmpty(t, seen)
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	assert.Equal(t, http.StatusOK, rw.StatusCode())

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode())

	n, err := rw.Write([]byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, rw.BytesWritten())

	rw.Flush()
	assert.True(t, rec.Flushed)
}
