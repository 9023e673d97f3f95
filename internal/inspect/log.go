// ABOUTME: Inspector that writes turn traces and bot state snapshots to slog
// ABOUTME: Useful during development to follow a conversation from the server log

package inspect

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/state"
	"github.com/2389/coven-botkit/internal/turn"
)

// LogInspector logs every trace at debug level.
type LogInspector struct {
	logger *slog.Logger
	states []*state.BotState
}

// NewLogInspector creates an inspector that also reports the given scopes at
// the end of each turn.
func NewLogInspector(logger *slog.Logger, states ...*state.BotState) *LogInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogInspector{logger: logger.With("component", "inspect"), states: states}
}

// Inbound logs the received activity and asks for full interception.
func (l *LogInspector) Inbound(_ context.Context, _ *turn.Context, trace *activity.Activity) (Intercept, error) {
	l.logTrace(trace)
	return Intercept{ForwardToApplication: true, Intercept: true}, nil
}

// Outbound logs each trace.
func (l *LogInspector) Outbound(_ context.Context, _ *turn.Context, traces []*activity.Activity) error {
	for _, t := range traces {
		l.logTrace(t)
	}
	return nil
}

// TraceState logs the cached document of each loaded scope.
func (l *LogInspector) TraceState(_ context.Context, tc *turn.Context) error {
	snapshot := make(map[string]map[string]json.RawMessage, len(l.states))
	for _, s := range l.states {
		if doc := s.Get(tc); doc != nil {
			snapshot[s.Name()] = doc
		}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	l.logger.Debug("bot state", "value_type", ValueTypeBotState, "state", string(data))
	return nil
}

func (l *LogInspector) logTrace(t *activity.Activity) {
	attrs := []any{"name", t.Name, "label", t.Label}
	if a, ok := t.Value.(*activity.Activity); ok {
		attrs = append(attrs, "type", a.Type, "id", a.ID, "text", a.Text)
	} else {
		attrs = append(attrs, "value", t.Value)
	}
	l.logger.Debug("inspect", attrs...)
}
