package hookgatezerolog

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/uptrace/hookgate"
	"github.com/uptrace/hookgate/schema"
)

type record struct {
	Level     zerolog.Level `json:"level"`
	Error     string        `json:"error"`
	Entity    string        `json:"entity"`
	Operation string        `json:"operation"`
	Duration  string        `json:"duration"`
}

func applyEvent(err error) *hookgate.ApplyEvent {
	return &hookgate.ApplyEvent{
		Event: &hookgate.MutationEvent{
			Entity: "ventas",
			Kind:   hookgate.KindInsert,
			New:    schema.NewRowImage(map[string]any{"id": "v1"}),
		},
		StartTime: time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
		Err:       err,
	}
}

func TestAfterApply(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 5, 20, 12, 0, 3, 0, time.UTC) }

	tests := []struct {
		name   string
		opts   []Option
		err    error
		expect record
	}{
		{
			name: "successful apply",
			err:  nil,
			expect: record{
				Level:     zerolog.DebugLevel,
				Entity:    "ventas",
				Operation: "insert ventas",
				Duration:  "3s",
			},
		},
		{
			name: "rejected mutation logs at the reject level",
			err: &hookgate.MutationRejectedError{
				Entity: "ventas", Kind: hookgate.KindInsert, Reason: "sin stock",
			},
			expect: record{
				Level:     zerolog.InfoLevel,
				Error:     "hookgate: ventas insert rejected: sin stock",
				Entity:    "ventas",
				Operation: "insert ventas",
				Duration:  "3s",
			},
		},
		{
			name: "storage failure logs at the error level",
			err:  &hookgate.StorageError{Op: "insert", Err: context.DeadlineExceeded},
			expect: record{
				Level:     zerolog.ErrorLevel,
				Error:     "hookgate: storage insert: context deadline exceeded",
				Entity:    "ventas",
				Operation: "insert ventas",
				Duration:  "3s",
			},
		},
		{
			name: "slow apply logs at the slow level",
			opts: []Option{WithSlowApplyThreshold(time.Second)},
			err:  nil,
			expect: record{
				Level:     zerolog.WarnLevel,
				Entity:    "ventas",
				Operation: "insert ventas",
				Duration:  "3s",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			opts := append([]Option{WithLogger(&logger)}, tt.opts...)
			hook := NewApplyHook(opts...)
			hook.now = now

			hook.AfterApply(context.Background(), applyEvent(tt.err))

			var got record
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			require.Equal(t, tt.expect, got)
		})
	}
}
