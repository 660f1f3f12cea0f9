package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apptID = "3e0b3c1e-8a55-4e5e-9c43-5b1f0b6f8d21"

var apptCols = []string{
	"id", "actor_id", "fullname", "service_id", "service_name", "slot_date", "slot_time",
	"status", "payment_status", "payment_method", "payment_proof", "proof_archive_key", "downpayment_cents",
	"decline_reason", "created_at", "updated_at", "cancelled_at", "completed_at",
}

var activeArgs = []string{"pending", "confirmed", "rescheduled"}

func apptRow(status, payment, date, clock string) *pgxmock.Rows {
	now := time.Date(2025, 12, 20, 9, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(apptCols).AddRow(
		apptID, "psid-1", "Maria Cruz", "svc-1", "Tooth Extraction", date, clock,
		status, payment, "GCASH", "https://cdn/proof.jpg", "", int64(30000),
		"", now, now, (*time.Time)(nil), (*time.Time)(nil),
	)
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newRepositoryWithQuerier(mock)
}

func TestInsertIfSlotFree(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(apptID, "psid-1", "Maria Cruz", "svc-1", "Tooth Extraction", "2025-12-24", "10:00",
			"pending", "pending", "GCASH", "https://cdn/proof.jpg", "", int64(30000)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	a := &Appointment{
		ID: apptID, ActorID: "psid-1", Fullname: "Maria Cruz", ServiceID: "svc-1", ServiceName: "Tooth Extraction",
		Date: "2025-12-24", Time: "10:00", Status: StatusPending, PaymentStatus: PaymentPending,
		PaymentMethod: "GCASH", PaymentProof: "https://cdn/proof.jpg", DownpaymentCents: 30000,
	}
	require.NoError(t, repo.InsertIfSlotFree(context.Background(), a))
	assert.Equal(t, now, a.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfSlotFreeUniqueViolation(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_idx"})

	err := repo.InsertIfSlotFree(context.Background(), &Appointment{Date: "2025-12-24", Time: "10:00"})
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointment(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs(apptID).
		WillReturnRows(apptRow("confirmed", "approved", "2025-12-24", "10:00"))

	a, err := repo.Get(context.Background(), apptID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
	assert.Equal(t, PaymentApproved, a.PaymentStatus)
	assert.Nil(t, a.CancelledAt)

	mock.ExpectQuery("SELECT (.+) FROM appointments").WithArgs(apptID).WillReturnError(pgx.ErrNoRows)
	_, err = repo.Get(context.Background(), apptID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Get(context.Background(), "42")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupiedTimes(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("SELECT slot_time FROM appointments WHERE slot_date = \\$1 AND status = ANY\\(\\$2\\)").
		WithArgs("2025-12-25", activeArgs).
		WillReturnRows(pgxmock.NewRows([]string{"slot_time"}).AddRow("13:00").AddRow("15:00"))

	got, err := repo.OccupiedTimes(context.Background(), "2025-12-25")
	require.NoError(t, err)
	assert.Equal(t, []string{"13:00", "15:00"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByActorAndStatusIn(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("WHERE actor_id = \\$1 AND status = ANY\\(\\$2\\)").
		WithArgs("psid-1", activeArgs).
		WillReturnRows(apptRow("pending", "pending", "2025-12-24", "10:00"))

	list, err := repo.FindByActorAndStatusIn(context.Background(), "psid-1", ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Maria Cruz", list[0].Fullname)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBuildsFilteredQuery(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE slot_date = \\$1 AND status IN \\(\\$2,\\$3\\) ORDER BY slot_date, slot_time LIMIT 200").
		WithArgs("2025-12-24", "pending", "confirmed").
		WillReturnRows(apptRow("pending", "pending", "2025-12-24", "10:00"))

	list, err := repo.List(context.Background(), Filter{
		Date:     "2025-12-24",
		Statuses: []Status{StatusPending, StatusConfirmed},
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardedUpdates(t *testing.T) {
	t.Run("approve applied", func(t *testing.T) {
		mock, repo := newMock(t)
		mock.ExpectQuery("UPDATE appointments SET\\s+payment_status = 'approved'").
			WithArgs(apptID, activeArgs).
			WillReturnRows(apptRow("confirmed", "approved", "2025-12-24", "10:00"))
		a, err := repo.ApprovePayment(context.Background(), apptID)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, a.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancel not applied", func(t *testing.T) {
		mock, repo := newMock(t)
		mock.ExpectQuery("UPDATE appointments SET\\s+status = 'cancelled'").
			WithArgs(apptID, activeArgs).
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.Cancel(context.Background(), apptID)
		assert.ErrorIs(t, err, errNotApplied)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("decline passes reason", func(t *testing.T) {
		mock, repo := newMock(t)
		mock.ExpectQuery("decline_reason = \\$3").
			WithArgs(apptID, activeArgs, "blurry photo").
			WillReturnRows(apptRow("declined", "declined", "2025-12-24", "10:00"))
		a, err := repo.DeclinePayment(context.Background(), apptID, "blurry photo")
		require.NoError(t, err)
		assert.Equal(t, StatusDeclined, a.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reschedule conflict", func(t *testing.T) {
		mock, repo := newMock(t)
		mock.ExpectQuery("UPDATE appointments SET\\s+slot_date = \\$3").
			WithArgs(apptID, activeArgs, "2025-12-26", "11:00").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		_, err := repo.RescheduleIfActive(context.Background(), apptID, "2025-12-26", "11:00")
		assert.ErrorIs(t, err, ErrSlotTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("done wraps driver errors", func(t *testing.T) {
		mock, repo := newMock(t)
		mock.ExpectQuery("status = 'done'").
			WithArgs(apptID, activeArgs).
			WillReturnError(errors.New("conn reset"))
		_, err := repo.MarkDone(context.Background(), apptID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, errNotApplied)
		assert.Contains(t, err.Error(), "appointments: update")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed id skips database", func(t *testing.T) {
		mock, repo := newMock(t)
		_, err := repo.Cancel(context.Background(), "abc")
		assert.ErrorIs(t, err, errNotApplied)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
