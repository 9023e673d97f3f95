// Package activity defines the conversational message envelope that flows
// through the bot runtime.
//
// # Activities
//
// An Activity carries routing identity (channel, conversation, from, recipient),
// a type discriminator and a payload the runtime never interprets. Only a small
// set of attributes matter to the pipeline:
//
//   - Type: message, trace, typing, event, invoke, endOfConversation, ...
//   - ChannelID, Conversation, From, Recipient: used to derive state keys
//   - ReplyToID: threads a response under the activity it answers
//   - DeliveryMode: "expectReplies" buffers outbound activities on the turn
//
// # Conversation References
//
// A ConversationReference captures everything needed to address a conversation
// later (proactive messages, skill callbacks):
//
//	ref := incoming.ConversationReference()
//	reply := activity.NewMessage("done")
//	reply.ApplyConversationReference(ref, false)
//
// ApplyConversationReference swaps from and recipient for outbound activities and
// sets ReplyToID from the reference's activity id.
package activity
