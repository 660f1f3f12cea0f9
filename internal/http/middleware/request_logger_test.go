package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{Output: &buf})

	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("slot taken"))
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/appointments/a1/reschedule", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["status"] != float64(http.StatusConflict) {
		t.Errorf("status = %v", entry["status"])
	}
	if entry["path"] != "/admin/appointments/a1/reschedule" {
		t.Errorf("path = %v", entry["path"])
	}
	if entry["request_id"] == "" {
		t.Errorf("expected request id")
	}
	if entry["bytes"] != float64(len("slot taken")) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
}
