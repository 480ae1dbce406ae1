package playback

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/autorp/autorp/internal/scenario"
	"github.com/autorp/autorp/internal/transport"
)

// ConditionWaiter resolves wait_for actions against an external signal,
// usually a chat log tail.
type ConditionWaiter interface {
	WaitFor(ctx context.Context, phrase string, timeout time.Duration) (bool, error)
}

// Runner plays a flattened action sequence through a transport, strictly in
// order, and records every step. One runner serves one client.
type Runner struct {
	Transport  transport.Transport
	Translator *Translator

	// Waiter, when set, blocks wait_for actions until the condition fires
	// or its timeout elapses. Without it wait_for is delegated to the
	// client via the WAITFOR payload alone.
	Waiter ConditionWaiter

	// SendInterval paces consecutive actions. Mutable mid-run through a
	// config action named send_interval.
	SendInterval time.Duration

	// OnEvent observes each recorded event as it happens.
	OnEvent func(Event)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner wires a runner over the given transport with the default
// translator.
func NewRunner(t transport.Transport) *Runner {
	return &Runner{Transport: t, Translator: NewTranslator()}
}

// Run executes the actions one by one and returns the frozen log. The
// returned log is valid even on error and covers every action that was
// attempted before the failure.
func (r *Runner) Run(ctx context.Context, subject string, actions []scenario.Action) (*Log, error) {
	log := NewLog(subject)
	defer log.freeze()
	if r.Translator == nil {
		r.Translator = NewTranslator()
	}
	if r.sleep == nil {
		r.sleep = sleepCtx
	}

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return log, fmt.Errorf("playback: %s aborted at action %d: %w", subject, i, err)
		}
		if i > 0 && r.SendInterval > 0 {
			if err := r.sleep(ctx, r.SendInterval); err != nil {
				return log, fmt.Errorf("playback: %s aborted: %w", subject, err)
			}
		}

		payloads, err := r.Translator.Translate(action)
		if err != nil {
			return log, fmt.Errorf("playback: %s action %d: %w", subject, i, err)
		}

		ev := Event{Action: action, Payloads: payloads, At: time.Now()}
		if err := r.dispatch(ctx, action, payloads, &ev); err != nil {
			return log, fmt.Errorf("playback: %s action %d (%s): %w", subject, i, action.Kind, err)
		}
		log.append(ev)
		r.notify(ev)
	}
	return log, nil
}

func (r *Runner) notify(ev Event) {
	if r.OnEvent != nil {
		r.OnEvent(ev)
	}
}

func (r *Runner) dispatch(ctx context.Context, action scenario.Action, payloads []string, ev *Event) error {
	for _, payload := range payloads {
		if err := r.Transport.Send(payload); err != nil {
			if action.Kind == scenario.KindScreenshot {
				ev.Error = err.Error()
				return nil
			}
			return err
		}
	}
	if err := r.Transport.Flush(); err != nil {
		return err
	}

	switch action.Kind {
	case scenario.KindWait:
		seconds := action.Float("seconds", action.Float("delay", 0))
		if seconds > 0 {
			return r.sleep(ctx, secondsToDuration(seconds))
		}
	case scenario.KindWaitFor:
		return r.awaitCondition(ctx, action, ev)
	case scenario.KindConfig:
		r.applyConfig(action)
	}
	return nil
}

func (r *Runner) awaitCondition(ctx context.Context, action scenario.Action, ev *Event) error {
	if r.Waiter == nil {
		return nil
	}
	phrase := action.Str("phrase", action.Str("value", ""))
	timeout := secondsToDuration(action.Float("timeout", action.Float("seconds", 10.0)))
	ok, err := r.Waiter.WaitFor(ctx, phrase, timeout)
	if err != nil {
		return err
	}
	if !ok {
		if action.Bool("fatal", false) {
			return fmt.Errorf("condition %q not met within %s", phrase, timeout)
		}
		ev.Error = fmt.Sprintf("condition %q not met within %s", phrase, timeout)
	}
	return nil
}

// applyConfig adjusts runner behaviour for the rest of the scenario. Unknown
// names are still forwarded on the wire for the client to interpret.
func (r *Runner) applyConfig(action scenario.Action) {
	name := action.Str("name", action.Str("key", ""))
	switch name {
	case "send_interval", "command_interval":
		if v, err := strconv.ParseFloat(action.Str("value", ""), 64); err == nil && v >= 0 {
			r.SendInterval = secondsToDuration(v)
		}
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
