// ABOUTME: Prometheus middleware counting turns, failures, and sent activities
// ABOUTME: Observes turn duration per channel on a caller-supplied registerer

package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

// otherLabel replaces label values outside the known or admitted set.
const otherLabel = "other"

// maxChannelLabels caps the distinct channel ids reported before the rest are
// folded into otherLabel.
const maxChannelLabels = 64

var knownActivityTypes = map[string]bool{
	activity.TypeMessage:               true,
	activity.TypeContactRelationUpdate: true,
	activity.TypeConversationUpdate:    true,
	activity.TypeTyping:                true,
	activity.TypeEndOfConversation:     true,
	activity.TypeEvent:                 true,
	activity.TypeInvoke:                true,
	activity.TypeInvokeResponse:        true,
	activity.TypeDelay:                 true,
	activity.TypeTrace:                 true,
	activity.TypeMessageUpdate:         true,
	activity.TypeMessageDelete:         true,
	activity.TypeMessageReaction:       true,
	activity.TypeInstallationUpdate:    true,
	activity.TypeHandoff:               true,
	activity.TypeCommand:               true,
	activity.TypeCommandResult:         true,
}

func activityTypeLabel(t string) string {
	if knownActivityTypes[t] {
		return t
	}
	return otherLabel
}

// channelLabels admits the first maxChannelLabels channel ids it sees.
type channelLabels struct {
	mu   sync.Mutex
	seen map[string]struct{}
	max  int
}

func (c *channelLabels) label(channel string) string {
	if channel == "" {
		return otherLabel
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[channel]; ok {
		return channel
	}
	if len(c.seen) >= c.max {
		return otherLabel
	}
	c.seen[channel] = struct{}{}
	return channel
}

// Metrics is middleware recording turn metrics. Label values come from the
// inbound activity, so activity types outside the known set and channels past
// the first maxChannelLabels are reported as "other".
type Metrics struct {
	turnsTotal    *prometheus.CounterVec
	turnFailures  *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	activitiesOut *prometheus.CounterVec
	channels      *channelLabels
}

// NewMetrics registers the collectors on reg under namespace. A nil reg uses
// the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		channels: &channelLabels{seen: make(map[string]struct{}), max: maxChannelLabels},
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of turns processed",
			},
			[]string{"channel", "activity_type"},
		),
		turnFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turn_failures_total",
				Help:      "Total number of turns that returned an error",
			},
			[]string{"channel"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Turn processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		activitiesOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activities_sent_total",
				Help:      "Total number of activities sent to channels",
			},
			[]string{"channel", "activity_type"},
		),
	}
}

var _ pipeline.Middleware = (*Metrics)(nil)

// OnTurn records the turn and every successful send made during it.
func (m *Metrics) OnTurn(ctx context.Context, tc *turn.Context, next pipeline.Next) error {
	a := tc.Activity()
	channel := m.channels.label(a.ChannelID)
	start := time.Now()

	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		responses, err := next(ctx)
		if err != nil {
			return nil, err
		}
		for _, out := range activities {
			m.activitiesOut.WithLabelValues(channel, activityTypeLabel(out.Type)).Inc()
		}
		return responses, nil
	})

	err := next(ctx)

	m.turnsTotal.WithLabelValues(channel, activityTypeLabel(a.Type)).Inc()
	m.turnDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
	if err != nil {
		m.turnFailures.WithLabelValues(channel).Inc()
	}
	return err
}
