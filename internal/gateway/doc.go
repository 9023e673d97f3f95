// Package gateway hosts a bot behind HTTP.
//
// # Overview
//
// New wires every runtime component from config: storage (memory, sqlite or
// redis), the three state scopes, the skill registry, an optional transcript
// store, outbound credentials, the adapter and its middleware stack. The bot
// itself is built by a BotFactory that receives these Services.
//
// # Middleware order
//
//  1. tracing (always; a no-op provider unless tracing is enabled)
//  2. metrics (metrics.enabled)
//  3. dedupe (dedupe.enabled)
//  4. inspection traces (logging.level debug)
//  5. transcript logging (transcript.enabled)
//  6. typing indicator (typing.enabled)
//  7. speak and markdown (bot.speak_voice, bot.markdown_channels)
//  8. auto-save of user, conversation and private state
//
// # HTTP API
//
//	POST   /api/messages
//	POST   /api/skills/v3/conversations/{conversationId}/activities
//	POST   /api/skills/v3/conversations/{conversationId}/activities/{activityId}
//	PUT    /api/skills/v3/conversations/{conversationId}/activities/{activityId}
//	DELETE /api/skills/v3/conversations/{conversationId}/activities/{activityId}
//	GET    /health
//	GET    /health/ready
//	GET    /metrics
//
// /api routes require a bearer token when auth.jwt_secret is set. Inbound
// activities are rate limited per conversation when server.rate_limit.rps is
// positive. /api/messages answers 202, or the invoke response for invoke and
// expectReplies activities.
//
// # gRPC
//
// When server.grpc_addr is set the standard grpc.health.v1 service is served
// there, reporting SERVING for "" and "coven.botkit" while the gateway runs.
package gateway
