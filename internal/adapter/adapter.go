// ABOUTME: Adapter that runs turns through the middleware chain and performs channel I/O
// ABOUTME: Handles inbound processing, proactive continuation, and outbound activity rules

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

// Adapter errors
var (
	ErrNilConnector = errors.New("connector cannot be nil")
	ErrNilActivity  = errors.New("activity cannot be nil")
	ErrNilIdentity  = errors.New("identity cannot be nil")
	ErrNilHandler   = errors.New("handler cannot be nil")
)

// Caller ids and outbound constants.
const (
	CallerIDPublicAzure = "urn:botframework:azure"
	EmulatorChannel     = "emulator"
	DefaultDelay        = time.Second

	turnErrorMessage   = "The bot encountered an error or bug."
	turnErrorTrace     = "OnTurnError Trace"
	turnErrorValueType = "https://www.botframework.com/schemas/error"
)

// ConnectorKey holds the connector used for a turn's outbound I/O.
var ConnectorKey = turn.NewKey[Connector]("botkit.connector")

// ErrorHandler handles an error that escaped the pipeline.
type ErrorHandler func(ctx context.Context, tc *turn.Context, err error) error

// Adapter runs turns and implements turn.Sender.
type Adapter struct {
	connector   Connector
	chain       *pipeline.Chain
	onTurnError ErrorHandler
	credentials *CredentialCache
	oauthScope  string
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithOnTurnError sets the handler for errors escaping the pipeline.
func WithOnTurnError(h ErrorHandler) Option {
	return func(a *Adapter) { a.onTurnError = h }
}

// WithCredentials gives the adapter ownership of a credential cache. It is
// closed by Close.
func WithCredentials(c *CredentialCache) Option {
	return func(a *Adapter) { a.credentials = c }
}

// WithMiddleware appends middleware to the adapter's chain.
func WithMiddleware(m ...pipeline.Middleware) Option {
	return func(a *Adapter) { a.chain.Use(m...) }
}

// WithOAuthScope sets the scope for outbound calls on channel turns.
func WithOAuthScope(scope string) Option {
	return func(a *Adapter) { a.oauthScope = scope }
}

// New creates an adapter over connector.
func New(connector Connector, opts ...Option) (*Adapter, error) {
	if connector == nil {
		return nil, ErrNilConnector
	}
	a := &Adapter{
		connector:  connector,
		chain:      pipeline.NewChain(),
		oauthScope: auth.ChannelServiceAudience,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "adapter")
	return a, nil
}

// Use appends middleware to the chain.
func (a *Adapter) Use(m ...pipeline.Middleware) *Adapter {
	a.chain.Use(m...)
	return a
}

// SetOnTurnError replaces the turn error handler.
func (a *Adapter) SetOnTurnError(h ErrorHandler) {
	a.onTurnError = h
}

// OnTurnError returns the turn error handler, or nil.
func (a *Adapter) OnTurnError() ErrorHandler {
	return a.onTurnError
}

// Close releases the credential cache.
func (a *Adapter) Close() error {
	if a.credentials != nil {
		a.credentials.Close()
	}
	return nil
}

// RunPipeline runs the chain and handler for tc. An error is passed to the
// turn error handler when one is set, and that handler's result is returned.
func (a *Adapter) RunPipeline(ctx context.Context, tc *turn.Context, handler pipeline.Handler) error {
	if tc == nil {
		return pipeline.ErrNilTurnContext
	}
	err := a.chain.Run(ctx, tc, handler)
	if err == nil {
		return nil
	}
	if a.onTurnError != nil {
		return a.onTurnError(ctx, tc, err)
	}
	return err
}

// ProcessActivity runs one inbound activity as a turn. It returns an invoke
// response for invoke and expectReplies turns, else nil.
func (a *Adapter) ProcessActivity(ctx context.Context, identity *auth.Identity, act *activity.Activity, handler pipeline.Handler) (*activity.InvokeResponse, error) {
	if act == nil {
		return nil, ErrNilActivity
	}
	if identity == nil {
		identity = auth.Anonymous()
	}

	act.CallerID = a.callerID(identity)

	tc, err := turn.New(a, act)
	if err != nil {
		return nil, err
	}
	defer a.closeTurn(tc)

	turn.IdentityKey.Set(tc.State(), identity)
	turn.OAuthScopeKey.Set(tc.State(), a.scopeFor(identity))
	ConnectorKey.Set(tc.State(), a.connector)

	if err := a.RunPipeline(ctx, tc, handler); err != nil {
		return nil, err
	}

	if act.DeliveryMode == activity.DeliveryExpectReplies {
		return &activity.InvokeResponse{
			Status: 200,
			Body:   activity.ExpectedReplies{Activities: tc.BufferedReplies()},
		}, nil
	}
	if act.IsType(activity.TypeInvoke) {
		return invokeResponseOf(tc), nil
	}
	return nil, nil
}

// ContinueConversation runs a proactive turn for ref. An empty scope uses the
// adapter's default.
func (a *Adapter) ContinueConversation(ctx context.Context, identity *auth.Identity, ref activity.ConversationReference, scope string, handler pipeline.Handler) error {
	if identity == nil {
		return ErrNilIdentity
	}
	if handler == nil {
		return ErrNilHandler
	}
	if scope == "" {
		scope = a.scopeFor(identity)
	}

	tc, err := turn.New(a, activity.ContinuationActivity(ref))
	if err != nil {
		return err
	}
	defer a.closeTurn(tc)

	turn.IdentityKey.Set(tc.State(), identity)
	turn.OAuthScopeKey.Set(tc.State(), scope)
	ConnectorKey.Set(tc.State(), a.connector)

	return a.RunPipeline(ctx, tc, handler)
}

// SendActivities applies the outbound rules and sends through the connector.
func (a *Adapter) SendActivities(ctx context.Context, tc *turn.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	responses := make([]activity.ResourceResponse, len(activities))
	connector := a.connectorFor(tc)
	scope := a.scopeOf(tc)

	for i, act := range activities {
		var resp activity.ResourceResponse
		switch {
		case act.IsType(activity.TypeDelay):
			if err := a.sleep(ctx, delayOf(act)); err != nil {
				return nil, err
			}
		case act.IsType(activity.TypeInvokeResponse):
			turn.InvokeResponseKey.Set(tc.State(), act)
		case act.IsType(activity.TypeTrace) && act.ChannelID != EmulatorChannel:
		case act.ReplyToID != "":
			r, err := connector.ReplyToActivity(ctx, scope, act)
			if err != nil {
				return nil, fmt.Errorf("replying to %s: %w", act.ReplyToID, err)
			}
			resp = r
		default:
			r, err := connector.SendToConversation(ctx, scope, act)
			if err != nil {
				return nil, fmt.Errorf("sending to conversation: %w", err)
			}
			resp = r
		}
		if resp.ID == "" {
			resp.ID = act.ID
		}
		responses[i] = resp
	}
	return responses, nil
}

// UpdateActivity replaces an activity through the connector.
func (a *Adapter) UpdateActivity(ctx context.Context, tc *turn.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	resp, err := a.connectorFor(tc).UpdateActivity(ctx, a.scopeOf(tc), act)
	if err != nil {
		return activity.ResourceResponse{}, fmt.Errorf("updating activity %s: %w", act.ID, err)
	}
	return resp, nil
}

// DeleteActivity deletes an activity through the connector.
func (a *Adapter) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	if err := a.connectorFor(tc).DeleteActivity(ctx, a.scopeOf(tc), ref); err != nil {
		return fmt.Errorf("deleting activity %s: %w", ref.ActivityID, err)
	}
	return nil
}

// DefaultOnTurnError logs the error and tells the user something went wrong.
// The error is reported as handled.
func DefaultOnTurnError(logger *slog.Logger) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, tc *turn.Context, err error) error {
		act := tc.Activity()
		logger.Error("unhandled turn error",
			"error", err,
			"channel_id", act.ChannelID,
			"conversation_id", conversationIDOf(act),
			"activity_type", act.Type,
		)

		if _, sendErr := tc.SendText(ctx, turnErrorMessage); sendErr != nil {
			logger.Warn("failed to send error message", "error", sendErr)
		}
		trace := activity.NewTrace(turnErrorTrace, err.Error(), turnErrorValueType, "TurnError")
		if _, sendErr := tc.SendActivity(ctx, trace); sendErr != nil {
			logger.Warn("failed to send error trace", "error", sendErr)
		}
		return nil
	}
}

func (a *Adapter) callerID(identity *auth.Identity) string {
	if identity.IsSkillClaim() {
		return activity.CallerIDBotToBotPrefix + identity.AppID()
	}
	if !identity.Authenticated {
		return ""
	}
	return CallerIDPublicAzure
}

func (a *Adapter) scopeFor(identity *auth.Identity) string {
	if identity.IsSkillClaim() {
		return identity.AppID() + "/.default"
	}
	return a.oauthScope
}

func (a *Adapter) scopeOf(tc *turn.Context) string {
	if scope, ok := turn.OAuthScopeKey.Get(tc.State()); ok && scope != "" {
		return scope
	}
	return a.oauthScope
}

func (a *Adapter) connectorFor(tc *turn.Context) Connector {
	if c, ok := ConnectorKey.Get(tc.State()); ok && c != nil {
		return c
	}
	return a.connector
}

func (a *Adapter) closeTurn(tc *turn.Context) {
	if err := tc.Close(); err != nil {
		a.logger.Warn("closing turn", "error", err)
	}
}

func invokeResponseOf(tc *turn.Context) *activity.InvokeResponse {
	act, ok := turn.InvokeResponseKey.Get(tc.State())
	if !ok || act == nil {
		return &activity.InvokeResponse{Status: 501}
	}
	switch v := act.Value.(type) {
	case *activity.InvokeResponse:
		return v
	case activity.InvokeResponse:
		return &v
	default:
		return &activity.InvokeResponse{Status: 200, Body: v}
	}
}

// delayOf reads the delay in milliseconds from a delay activity's value.
func delayOf(act *activity.Activity) time.Duration {
	switch v := act.Value.(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	case time.Duration:
		return v
	}
	return DefaultDelay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
