// Package hookgatezerolog logs hookgate apply events through zerolog. Attach
// it with Engine.AddApplyHook to see every mutation with its entity, kind,
// outcome and duration.
package hookgatezerolog

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/uptrace/hookgate"
)

var _ hookgate.ApplyHook = (*ApplyHook)(nil)

// Option is a function that configures an ApplyHook.
type Option func(*ApplyHook)

// WithLogger sets the *zerolog.Logger instance. When unset the logger is
// taken from the context.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *ApplyHook) {
		h.logger = logger
	}
}

// WithApplyLogLevel sets the log level for successful mutations.
func WithApplyLogLevel(level zerolog.Level) Option {
	return func(h *ApplyHook) {
		h.applyLogLevel = level
	}
}

// WithRejectLogLevel sets the log level for mutations vetoed by a BEFORE hook.
func WithRejectLogLevel(level zerolog.Level) Option {
	return func(h *ApplyHook) {
		h.rejectLogLevel = level
	}
}

// WithErrorLogLevel sets the log level for storage and after-hook failures.
func WithErrorLogLevel(level zerolog.Level) Option {
	return func(h *ApplyHook) {
		h.errorLogLevel = level
	}
}

// WithSlowApplyThreshold sets the duration threshold for identifying slow
// mutations, usually ones that waited on a row lock.
func WithSlowApplyThreshold(threshold time.Duration) Option {
	return func(h *ApplyHook) {
		h.slowApplyThreshold = threshold
	}
}

// WithSlowApplyLogLevel sets the log level for slow mutations.
func WithSlowApplyLogLevel(level zerolog.Level) Option {
	return func(h *ApplyHook) {
		h.slowApplyLogLevel = level
	}
}

// WithLogFormat sets a custom format for the emitted zerolog event.
func WithLogFormat(f LogFormatFn) Option {
	return func(h *ApplyHook) {
		h.logFormat = f
	}
}

type LogFormatFn func(ctx context.Context, event *hookgate.ApplyEvent, zeroctx *zerolog.Event) *zerolog.Event

// ApplyHook logs apply events. It implements hookgate.ApplyHook.
type ApplyHook struct {
	logger             *zerolog.Logger
	applyLogLevel      zerolog.Level
	rejectLogLevel     zerolog.Level
	slowApplyLogLevel  zerolog.Level
	errorLogLevel      zerolog.Level
	slowApplyThreshold time.Duration
	logFormat          LogFormatFn
	now                func() time.Time
}

// NewApplyHook initializes a new ApplyHook with the given options.
func NewApplyHook(opts ...Option) *ApplyHook {
	h := &ApplyHook{
		applyLogLevel:     zerolog.DebugLevel,
		rejectLogLevel:    zerolog.InfoLevel,
		slowApplyLogLevel: zerolog.WarnLevel,
		errorLogLevel:     zerolog.ErrorLevel,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logFormat == nil {
		h.logFormat = func(ctx context.Context, event *hookgate.ApplyEvent, zerevent *zerolog.Event) *zerolog.Event {
			duration := h.now().Sub(event.StartTime)

			return zerevent.
				Ctx(ctx).
				Err(event.Err).
				Str("entity", string(event.Event.Entity)).
				Str("operation", event.Operation()).
				Str("duration", duration.String())
		}
	}

	return h
}

// BeforeApply is called before a mutation is dispatched.
func (h *ApplyHook) BeforeApply(ctx context.Context, event *hookgate.ApplyEvent) context.Context {
	return ctx
}

// AfterApply logs the mutation based on its duration and outcome.
func (h *ApplyHook) AfterApply(ctx context.Context, event *hookgate.ApplyEvent) {
	level := h.applyLogLevel
	duration := h.now().Sub(event.StartTime)
	if h.slowApplyThreshold > 0 && h.slowApplyThreshold <= duration {
		level = h.slowApplyLogLevel
	}

	if event.Err != nil {
		var rejected *hookgate.MutationRejectedError
		if errors.As(event.Err, &rejected) {
			level = h.rejectLogLevel
		} else {
			level = h.errorLogLevel
		}
	}

	l := h.logger
	if l == nil {
		l = log.Ctx(ctx)
	}

	h.logFormat(ctx, event, l.WithLevel(level)).Send()
}
