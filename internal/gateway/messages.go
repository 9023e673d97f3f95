// ABOUTME: HTTP handlers for inbound channel activities and skill callbacks
// ABOUTME: Decodes activities, applies rate limits, and writes invoke responses

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/skills"
)

const maxActivityBytes = 1 << 20

// handleMessages processes one activity from a channel.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	act, ok := g.decodeActivity(w, r)
	if !ok {
		return
	}
	if act.Type == "" {
		g.sendJSONError(w, http.StatusBadRequest, "activity type is required")
		return
	}

	key := act.ChannelID
	if act.Conversation != nil {
		key += "/" + act.Conversation.ID
	}
	if !g.limiter.Allow(key) {
		g.logger.Warn("rate limited", "channel_id", act.ChannelID, "conversation_key", key)
		g.sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	resp, err := g.adapter.ProcessActivity(r.Context(), auth.FromContext(r.Context()), act, g.bot)
	if err != nil {
		g.logger.Error("processing activity failed", "error", err, "channel_id", act.ChannelID, "activity_type", act.Type)
		g.sendJSONError(w, http.StatusInternalServerError, "processing activity failed")
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	g.sendJSON(w, resp.Status, resp.Body)
}

func (g *Gateway) handleSkillSend(w http.ResponseWriter, r *http.Request) {
	act, ok := g.decodeActivity(w, r)
	if !ok {
		return
	}
	resp, err := g.skills.SendToConversation(r.Context(), auth.FromContext(r.Context()), r.PathValue("conversationId"), act)
	g.writeSkillResponse(w, resp, err)
}

func (g *Gateway) handleSkillReply(w http.ResponseWriter, r *http.Request) {
	act, ok := g.decodeActivity(w, r)
	if !ok {
		return
	}
	resp, err := g.skills.ReplyToActivity(r.Context(), auth.FromContext(r.Context()), r.PathValue("conversationId"), r.PathValue("activityId"), act)
	g.writeSkillResponse(w, resp, err)
}

func (g *Gateway) handleSkillUpdate(w http.ResponseWriter, r *http.Request) {
	act, ok := g.decodeActivity(w, r)
	if !ok {
		return
	}
	resp, err := g.skills.UpdateActivity(r.Context(), auth.FromContext(r.Context()), r.PathValue("conversationId"), r.PathValue("activityId"), act)
	g.writeSkillResponse(w, resp, err)
}

func (g *Gateway) handleSkillDelete(w http.ResponseWriter, r *http.Request) {
	err := g.skills.DeleteActivity(r.Context(), auth.FromContext(r.Context()), r.PathValue("conversationId"), r.PathValue("activityId"))
	if err != nil {
		g.writeSkillResponse(w, activity.ResourceResponse{}, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) writeSkillResponse(w http.ResponseWriter, resp activity.ResourceResponse, err error) {
	switch {
	case errors.Is(err, skills.ErrReferenceNotFound):
		g.sendJSONError(w, http.StatusNotFound, "skill conversation not found")
	case err != nil:
		g.logger.Error("skill callback failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "skill callback failed")
	default:
		g.sendJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) decodeActivity(w http.ResponseWriter, r *http.Request) (*activity.Activity, bool) {
	var act activity.Activity
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes))
	if err := dec.Decode(&act); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return &act, true
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Warn("writing response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
