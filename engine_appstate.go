package goGate

import (
	"context"
	"time"

	"github.com/MrEthical07/goGate/appstate"
)

// CurrentState resolves the application state in effect now.
func (e *Engine) CurrentState(ctx context.Context) (appstate.Current, error) {
	current, err := e.gate.Resolve(ctx, e.now())
	if err != nil {
		return appstate.Current{}, newError(ErrInternal, err, nil)
	}
	return current, nil
}

// StateSchedule returns the stored schedule in ascending order.
func (e *Engine) StateSchedule(ctx context.Context) ([]appstate.Entry, error) {
	entries, err := e.gate.Entries(ctx)
	if err != nil {
		return nil, newError(ErrInternal, err, nil)
	}
	return entries, nil
}

// ScheduleState adds entry to the schedule, replacing an entry at the same
// instant. The schedule cache is cleared before ScheduleState returns, so the
// next request sees the new schedule.
func (e *Engine) ScheduleState(ctx context.Context, entry appstate.Entry) ([]appstate.Entry, error) {
	entries, err := e.gate.Schedule(ctx, entry)
	if err != nil {
		return nil, classify(err)
	}
	e.metricInc(MetricAppStateScheduled)
	e.emitAudit(ctx, AuditEvent{
		Type:    AuditAppStateScheduled,
		Success: true,
		Metadata: map[string]string{
			"state":          string(entry.State),
			"effective_from": entry.EffectiveFrom.UTC().Format(time.RFC3339),
		},
	})
	return entries, nil
}

type scheduleInput struct {
	State         string    `json:"state" validate:"required"`
	EffectiveFrom time.Time `json:"effectiveFrom" validate:"required"`
	Reason        string    `json:"reason"`
}

type scheduleResponse struct {
	Schedule []appstate.Entry `json:"schedule"`
	Current  appstate.Current `json:"current"`
}

func (e *Engine) currentStateRoute(rc *RequestContext) (any, error) {
	return e.CurrentState(rc.Request.Context())
}

func (e *Engine) scheduleStateRoute(rc *RequestContext) (any, error) {
	var in scheduleInput
	if err := rc.Bind(&in); err != nil {
		return nil, err
	}
	state, err := appstate.ParseState(in.State)
	if err != nil {
		return nil, classify(err)
	}

	ctx := rc.Request.Context()
	entries, err := e.ScheduleState(ctx, appstate.Entry{
		State:         state,
		EffectiveFrom: in.EffectiveFrom,
		Reason:        in.Reason,
	})
	if err != nil {
		return nil, err
	}
	current, err := e.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	return scheduleResponse{Schedule: entries, Current: current}, nil
}
