package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/locks"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const releaseAttempts = 3

// SessionReleaser moves an actor out of waiting_admin once staff resolve the
// payment. It takes the same per-actor lock as the dispatcher.
type SessionReleaser struct {
	store  sessions.Store
	locker locks.Locker
	logger *logging.Logger
}

func NewSessionReleaser(store sessions.Store, locker locks.Locker, logger *logging.Logger) *SessionReleaser {
	if store == nil || locker == nil {
		panic("booking: session store and locker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionReleaser{store: store, locker: locker, logger: logger}
}

// ReleaseWaiting resets the session to idle if it is still waiting on
// appointmentID. Sessions that moved on are left alone.
func (r *SessionReleaser) ReleaseWaiting(ctx context.Context, actorID, appointmentID string) error {
	release, err := r.locker.Acquire(ctx, actorID)
	if err != nil {
		return fmt.Errorf("booking: release %s: %w", actorID, err)
	}
	defer release()

	for attempt := 0; attempt < releaseAttempts; attempt++ {
		s, err := r.store.Get(ctx, actorID)
		if err != nil {
			return fmt.Errorf("booking: release %s: %w", actorID, err)
		}
		if s.Step != sessions.StepWaitingAdmin {
			return nil
		}
		if s.Draft.AppointmentID != "" && s.Draft.AppointmentID != appointmentID {
			return nil
		}
		s.Reset()
		err = r.store.Save(ctx, s)
		if err == nil {
			r.logger.Info("session released after staff review", "actor_id", actorID, "appointment_id", appointmentID)
			return nil
		}
		if !errors.Is(err, sessions.ErrVersionConflict) {
			return fmt.Errorf("booking: release %s: %w", actorID, err)
		}
	}
	return fmt.Errorf("booking: release %s: %w", actorID, sessions.ErrVersionConflict)
}
