package slots

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const defaultLookupTimeout = 5 * time.Second

// BookedTimes lists canonical times held by non-terminal appointments.
type BookedTimes interface {
	OccupiedTimes(ctx context.Context, date string) ([]string, error)
}

// BlockedHours lists the blocked ranges for a date.
type BlockedHours interface {
	BlockedHours(ctx context.Context, date string) ([]HourRange, error)
}

// Service computes availability from live store reads. It never caches.
type Service struct {
	canonical []Clock
	bookings  BookedTimes
	blocks    BlockedHours
	timeout   time.Duration
	loc       *time.Location
	logger    *logging.Logger
}

// NewService wires the calculator to its sources.
func NewService(canonical []Clock, bookings BookedTimes, blocks BlockedHours, timeout time.Duration, loc *time.Location, logger *logging.Logger) *Service {
	if bookings == nil {
		panic("slots: booked times source required")
	}
	if blocks == nil {
		panic("slots: blocked hours source required")
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		canonical: append([]Clock(nil), canonical...),
		bookings:  bookings,
		blocks:    blocks,
		timeout:   timeout,
		loc:       loc,
		logger:    logger,
	}
}

// Free returns the free clocks for date in canonical order.
func (s *Service) Free(ctx context.Context, date string) ([]Clock, error) {
	d, err := ParseDate(date, s.loc)
	if err != nil {
		return nil, err
	}
	day := d.Format(DateLayout)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		booked []string
		ranges []HourRange
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		booked, err = s.bookings.OccupiedTimes(gctx, day)
		if err != nil {
			return fmt.Errorf("slots: load bookings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ranges, err = s.blocks.BlockedHours(gctx, day)
		if err != nil {
			return fmt.Errorf("slots: load blocks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	occupied := make([]Clock, 0, len(booked))
	for _, raw := range booked {
		c, err := ParseClock(raw)
		if err != nil {
			// A bad stored time cannot free a slot; log and ignore it.
			s.logger.Warn("slots: unparseable booked time", "date", day, "time", raw)
			continue
		}
		occupied = append(occupied, c)
	}
	return Free(s.canonical, occupied, ranges), nil
}

// FreeSlots returns display labels for the free times on date.
func (s *Service) FreeSlots(ctx context.Context, date string) ([]string, error) {
	free, err := s.Free(ctx, date)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(free))
	for i, c := range free {
		labels[i] = c.Display()
	}
	return labels, nil
}

// Canonical returns a copy of the clinic's slot list.
func (s *Service) Canonical() []Clock {
	return append([]Clock(nil), s.canonical...)
}
