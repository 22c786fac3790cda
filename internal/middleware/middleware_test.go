package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dis/internal/logging"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-id", seen)
}

func TestLoggerAndRecover(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &logging.Logger{Logger: zap.New(core)}

	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := Chain(panicky, Recover(logger), Logger(logger), RequestID)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/head", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	completed := logs.FilterMessage("request completed").All()
	if assert.Len(t, completed, 1) {
		fields := completed[0].ContextMap()
		assert.Equal(t, "/api/head", fields["path"])
		assert.EqualValues(t, http.StatusInternalServerError, fields["status"])
		assert.NotEmpty(t, fields["request_id"])
	}
}
