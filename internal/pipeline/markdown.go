// ABOUTME: Send interceptor converting markdown message text to HTML
// ABOUTME: Applies to channels that render HTML but not markdown

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/turn"
)

// Markdown renders outgoing markdown messages as HTML.
type Markdown struct {
	md       goldmark.Markdown
	channels map[string]bool
}

// NewMarkdown creates the middleware for the given channel ids. With no
// channels it applies everywhere.
func NewMarkdown(channels ...string) *Markdown {
	m := &Markdown{
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		channels: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		m.channels[strings.ToLower(ch)] = true
	}
	return m
}

// OnTurn registers the send handler and continues.
func (m *Markdown) OnTurn(ctx context.Context, tc *turn.Context, next Next) error {
	if len(m.channels) > 0 && !m.channels[strings.ToLower(tc.Activity().ChannelID)] {
		return next(ctx)
	}

	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		for _, a := range activities {
			if !a.IsType(activity.TypeMessage) || a.TextFormat != activity.TextFormatMarkdown {
				continue
			}
			var buf bytes.Buffer
			if err := m.md.Convert([]byte(a.Text), &buf); err != nil {
				return nil, fmt.Errorf("rendering markdown: %w", err)
			}
			a.Text = strings.TrimSpace(buf.String())
			a.TextFormat = activity.TextFormatXML
		}
		return next(ctx)
	})
	return next(ctx)
}
