package appointments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	today := "2025-12-20"
	cases := []struct {
		name string
		a    Appointment
		want string
	}{
		{"cancelled wins", Appointment{Status: StatusCancelled, Date: "2025-12-20"}, "Cancelled"},
		{"declined", Appointment{Status: StatusDeclined, Date: "2025-12-30"}, "Declined"},
		{"done", Appointment{Status: StatusDone, Date: "2025-12-30"}, "Done"},
		{"past reads done", Appointment{Status: StatusConfirmed, Date: "2025-12-19"}, "Done"},
		{"today waiting", Appointment{Status: StatusPending, PaymentStatus: PaymentPending, Date: today}, "Waiting"},
		{"pending payment", Appointment{Status: StatusPending, PaymentStatus: PaymentPending, Date: "2025-12-24"}, "Pending payment"},
		{"confirmed upcoming", Appointment{Status: StatusConfirmed, PaymentStatus: PaymentApproved, Date: "2025-12-24"}, "Upcoming"},
		{"rescheduled upcoming", Appointment{Status: StatusRescheduled, PaymentStatus: PaymentPending, Date: "2025-12-24"}, "Upcoming"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.a
			assert.Equal(t, tc.want, Project(tc.a, today).Label)
			assert.Equal(t, before, tc.a)
		})
	}
}

func newTestHandler(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	return f, NewHandler(f.mgr, nil).Routes()
}

func TestHandlerApproveAndList(t *testing.T) {
	f, h := newTestHandler(t)
	a := f.reserve(t, "psid-1", "2025-12-24", "10:00")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/"+a.ID+"/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, StatusConfirmed, view.Status)
	assert.Equal(t, "10:00 AM", view.DisplayTime)
	assert.Equal(t, "Upcoming", view.Display.Label)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?date=2025-12-24&status=confirmed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Appointments []View `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Appointments, 1)
	f.mgr.Wait()
}

func TestHandlerErrors(t *testing.T) {
	f, h := newTestHandler(t)
	a := f.reserve(t, "psid-1", "2025-12-24", "10:00")
	f.reserve(t, "psid-2", "2025-12-24", "11:00")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"unknown status filter", http.MethodGet, "/?status=lost", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/?limit=-1", "", http.StatusBadRequest},
		{"missing", http.MethodGet, "/" + uuid.NewString(), "", http.StatusNotFound},
		{"reschedule into taken slot", http.MethodPost, "/" + a.ID + "/reschedule", `{"date":"2025-12-24","time":"11:00 AM"}`, http.StatusConflict},
		{"reschedule off hours", http.MethodPost, "/" + a.ID + "/reschedule", `{"date":"2025-12-24","time":"12:00 PM"}`, http.StatusBadRequest},
		{"reschedule missing fields", http.MethodPost, "/" + a.ID + "/reschedule", `{"date":""}`, http.StatusBadRequest},
		{"decline bad json", http.MethodPost, "/" + a.ID + "/decline", `{`, http.StatusBadRequest},
		{"cancel", http.MethodPost, "/" + a.ID + "/cancel", "", http.StatusOK},
		{"approve after cancel", http.MethodPost, "/" + a.ID + "/approve", "", http.StatusConflict},
		{"done after cancel", http.MethodPost, "/" + a.ID + "/done", "", http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
	f.mgr.Wait()
}
