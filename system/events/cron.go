package events

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arcforge/bundlehost/system/ferrors"
)

// ScheduleCron is sugar over Schedule: it parses a standard five-field cron
// expression (github.com/robfig/cron/v3, the same library the teacher's
// automation services depend on) and re-derives the next occurrence each
// time the event fires, giving bundles calendar-based scheduling on top of
// the engine's interval/one-shot primitive without the engine itself ever
// depending on wall-clock cron semantics.
func (e *Engine) ScheduleCron(bundleID int64, name, cronExpr string, callback Callback, removeCallback RemoveCallback) (int64, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.KindConflict, "events.scheduleCron", err)
	}

	now := time.Now()
	first := schedule.Next(now)

	var id int64
	wrapped := func(ev *ScheduledEvent) error {
		err := callback(ev)
		e.rescheduleCronOneShot(id, schedule, name, bundleID, callback, removeCallback)
		return err
	}

	id, err = e.Schedule(bundleID, name, first.Sub(now), 0, wrapped, removeCallback)
	return id, err
}

func (e *Engine) rescheduleCronOneShot(prevID int64, schedule cron.Schedule, name string, bundleID int64, callback Callback, removeCallback RemoveCallback) {
	next := schedule.Next(time.Now())
	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}
	var id int64
	wrapped := func(ev *ScheduledEvent) error {
		err := callback(ev)
		e.rescheduleCronOneShot(id, schedule, name, bundleID, callback, removeCallback)
		return err
	}
	newID, err := e.Schedule(bundleID, name, delay, 0, wrapped, removeCallback)
	if err != nil {
		e.log.WithError(err).WithField("event", name).Warn("events: failed to reschedule cron event")
		return
	}
	id = newID
}
