package hookgate

import (
	"context"
	"time"

	"github.com/uptrace/hookgate/schema"
)

// ApplyEvent is the observer-side view of one Apply call. It is shared by the
// BeforeApply and AfterApply sides of every attached ApplyHook.
type ApplyEvent struct {
	Engine *Engine
	Event  *MutationEvent

	StartTime time.Time
	Result    *schema.RowImage
	Err       error

	Stash map[interface{}]interface{}
}

// Operation returns a short label such as "insert product".
func (e *ApplyEvent) Operation() string {
	return e.Event.Kind.String() + " " + string(e.Event.Entity)
}

// ApplyHook observes Apply calls for instrumentation (logging, tracing,
// metrics). Unlike mutation hooks, apply hooks cannot veto or write; they run
// outside the hook registry and see failures as well as successes.
type ApplyHook interface {
	BeforeApply(ctx context.Context, event *ApplyEvent) context.Context
	AfterApply(ctx context.Context, event *ApplyEvent)
}

func (e *Engine) beforeApply(ctx context.Context, event *MutationEvent) (context.Context, *ApplyEvent) {
	if len(e.applyHooks) == 0 {
		return ctx, nil
	}

	applyEvent := &ApplyEvent{
		Engine:    e,
		Event:     event,
		StartTime: time.Now(),
	}
	for _, hook := range e.applyHooks {
		ctx = hook.BeforeApply(ctx, applyEvent)
	}
	return ctx, applyEvent
}

func (e *Engine) afterApply(ctx context.Context, applyEvent *ApplyEvent, row *schema.RowImage, err error) {
	if applyEvent == nil {
		return
	}

	applyEvent.Result = row
	applyEvent.Err = err

	for i := len(e.applyHooks) - 1; i >= 0; i-- {
		e.applyHooks[i].AfterApply(ctx, applyEvent)
	}
}
