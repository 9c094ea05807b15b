// Package shift implements the shift manager (§4.I): opening and closing
// shifts, the at-most-one-active invariant, and the 30s auto-closer loop.
package shift

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dacrisa/comandas-core/internal/carryover"
	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
)

// ScheduleLookup resolves (slot, date) to the scheduled end-of-shift time.
// Shift schedules are configuration owned by an external collaborator
// (role-gated CRUD of schedules is out of scope, per §1); the core only
// needs "given a slot and date, when does it end".
type ScheduleLookup func(slot string, date time.Time) (scheduledEnd time.Time, ok bool)

// Manager opens/closes shifts and runs the auto-closer loop.
type Manager struct {
	database    *sql.DB
	bus         *eventbus.Bus
	carryover   *carryover.Engine
	pollNow     func()
	schedule    ScheduleLookup
	checkPeriod time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewManager(database *sql.DB, bus *eventbus.Bus, carry *carryover.Engine, pollNow func(), schedule ScheduleLookup, checkPeriod time.Duration) *Manager {
	return &Manager{
		database:    database,
		bus:         bus,
		carryover:   carry,
		pollNow:     pollNow,
		schedule:    schedule,
		checkPeriod: checkPeriod,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

var (
	ErrShiftAlreadyActive = fmt.Errorf("SHIFT_ALREADY_ACTIVE")
	ErrScheduleNotFound   = fmt.Errorf("SCHEDULE_NOT_FOUND")
	ErrDuplicateShift     = fmt.Errorf("DUPLICATE_SHIFT")
	ErrNoActiveShift      = fmt.Errorf("NO_ACTIVE_SHIFT")
)

// OpenShift implements §4.I's open_shift.
func (m *Manager) OpenShift(ctx context.Context, slot string, date time.Time, actor *string) (*db.Shift, error) {
	scheduledEnd, ok := m.schedule(slot, date)
	if !ok {
		return nil, ErrScheduleNotFound
	}

	var shiftID string
	var startedAt time.Time
	var startedEnv eventbus.Envelope

	err := db.RunInTx(ctx, m.database, func(q *db.Queries) error {
		active, err := q.GetActiveShift(ctx)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrShiftAlreadyActive
		}

		existing, err := q.GetShiftByDateSlot(ctx, date, slot)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateShift
		}

		shiftID = uuid.NewString()
		if err := q.CreateShift(ctx, shiftID, date, slot); err != nil {
			return err
		}
		startedAt = time.Now().UTC()
		if err := q.ActivateShift(ctx, shiftID, startedAt, scheduledEnd); err != nil {
			return err
		}

		startedEnv, err = m.bus.PublishPersistOnly(ctx, q, actor, eventbus.TypeShiftStarted, eventbus.EntityShift, shiftID,
			map[string]interface{}{"slot": slot, "date": date, "started_at": startedAt, "scheduled_end_at": scheduledEnd})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.bus.FanOut(startedEnv)

	if err := m.carryover.Run(ctx, shiftID); err != nil {
		log.Printf("ERROR: shift: carryover into %s failed: %v", shiftID, err)
	}

	if m.pollNow != nil {
		m.pollNow()
	}

	return db.New(m.database).GetShift(ctx, shiftID)
}

// CloseShift implements §4.I's close_shift.
func (m *Manager) CloseShift(ctx context.Context, actor *string) (*db.Shift, error) {
	var shiftID string
	var endedAt time.Time
	var closedEnv eventbus.Envelope

	err := db.RunInTx(ctx, m.database, func(q *db.Queries) error {
		active, err := q.GetActiveShift(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			return ErrNoActiveShift
		}
		shiftID = active.ID
		endedAt = time.Now().UTC()
		if err := q.CloseShift(ctx, shiftID, endedAt); err != nil {
			return err
		}
		closedEnv, err = m.bus.PublishPersistOnly(ctx, q, actor, eventbus.TypeShiftClosed, eventbus.EntityShift, shiftID,
			map[string]interface{}{"ended_at": endedAt})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.bus.FanOut(closedEnv)
	return db.New(m.database).GetShift(ctx, shiftID)
}

// RunAutoCloser starts the 30s-period loop that closes any ACTIVE shift whose
// scheduled_end_at has elapsed, emitting SHIFT_CLOSED_AUTO (§4.I).
func (m *Manager) RunAutoCloser(ctx context.Context) {
	ticker := time.NewTicker(m.checkPeriod)
	defer ticker.Stop()
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.closeElapsedShifts(ctx)
		}
	}
}

// Stop signals RunAutoCloser to exit and waits for it to finish.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) closeElapsedShifts(ctx context.Context) {
	now := time.Now().UTC()
	q := db.New(m.database)
	elapsed, err := q.GetShiftsPastScheduledEnd(ctx, now)
	if err != nil {
		log.Printf("ERROR: shift: auto-closer query failed: %v", err)
		return
	}

	for _, s := range elapsed {
		var autoClosedEnv eventbus.Envelope
		err := db.RunInTx(ctx, m.database, func(tq *db.Queries) error {
			if err := tq.CloseShift(ctx, s.ID, now); err != nil {
				return err
			}
			var err error
			autoClosedEnv, err = m.bus.PublishPersistOnly(ctx, tq, nil, eventbus.TypeShiftClosedAuto, eventbus.EntityShift, s.ID,
				map[string]interface{}{"scheduled_end_at": s.ScheduledEndAt.Time, "ended_at": now})
			return err
		})
		if err != nil {
			log.Printf("ERROR: shift: auto-close of %s failed: %v", s.ID, err)
			continue
		}
		m.bus.FanOut(autoClosedEnv)
	}
}
