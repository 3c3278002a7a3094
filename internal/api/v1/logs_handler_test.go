package v1

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	systemlog "github.com/xiaowoniu928/hetzner-web/pkg/logger"
)

func newLogsRouter(store *systemlog.LogStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterLogsRoutes(router.Group("/api"), store)
	return router
}

func newCapturedLogger(store *systemlog.LogStore) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(io.Discard),
		zapcore.DebugLevel,
	)
	return store.Wrap(zap.New(core))
}

func TestLogsHandlerReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	store := systemlog.NewLogStore(10)
	logger := newCapturedLogger(store)
	logger.Info("first")
	logger.Warn("second")
	logger.Error("third")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/logs?limit=2", nil)
	newLogsRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Entries []systemlog.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(body.Entries))
	}
	if body.Entries[0].Message != "third" || body.Entries[1].Message != "second" {
		t.Fatalf("wrong order: %q then %q", body.Entries[0].Message, body.Entries[1].Message)
	}
	if body.Entries[0].Level != "error" {
		t.Fatalf("level = %q, want error", body.Entries[0].Level)
	}
}

func TestLogsHandlerBadLimitFallsBack(t *testing.T) {
	t.Parallel()

	store := systemlog.NewLogStore(10)
	newCapturedLogger(store).Info("only entry")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/logs?limit=bogus", nil)
	newLogsRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Entries []systemlog.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(body.Entries))
	}
}
