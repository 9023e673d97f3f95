// ABOUTME: Middleware that fills the speak field of outgoing messages for voice channels
// ABOUTME: Wraps speech in SSML with the configured voice on speech-capable channels

package pipeline

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/turn"
)

const defaultSpeakLocale = "en-US"

var speechChannels = map[string]bool{
	"directlinespeech": true,
	"emulator":         true,
	"telephony":        true,
}

// SetSpeak copies text to speak on outgoing messages and wraps speech in SSML
// for speech channels.
type SetSpeak struct {
	voice          string
	fallbackToText bool
}

// NewSetSpeak creates the middleware. An empty voice disables SSML wrapping.
func NewSetSpeak(voice string, fallbackToText bool) *SetSpeak {
	return &SetSpeak{voice: voice, fallbackToText: fallbackToText}
}

// OnTurn registers the send handler and continues.
func (s *SetSpeak) OnTurn(ctx context.Context, tc *turn.Context, next Next) error {
	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		channel := strings.ToLower(tc.Activity().ChannelID)
		for _, a := range activities {
			if !a.IsType(activity.TypeMessage) {
				continue
			}
			if s.fallbackToText && strings.TrimSpace(a.Speak) == "" {
				a.Speak = a.Text
			}
			if strings.TrimSpace(a.Speak) == "" || s.voice == "" || !speechChannels[channel] {
				continue
			}
			if hasTag("speak", a.Speak) {
				continue
			}
			if !hasTag("voice", a.Speak) {
				a.Speak = fmt.Sprintf("<voice name='%s'>%s</voice>", s.voice, a.Speak)
			}
			locale := a.Locale
			if locale == "" {
				locale = defaultSpeakLocale
			}
			a.Speak = fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>%s</speak>", locale, a.Speak)
		}
		return next(ctx)
	})
	return next(ctx)
}

// hasTag reports whether text is XML containing an element named tag.
func hasTag(tag, text string) bool {
	dec := xml.NewDecoder(strings.NewReader(text))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == tag {
			return true
		}
	}
}
