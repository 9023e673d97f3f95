// Package skills lets this bot call other bots ("skills") and receive their
// replies.
//
// When the bot hands a conversation to a skill, Registry.Create stores a
// reference to the caller's conversation and returns a skill conversation id
// of the form {fromBotId}-{skillAppId}-{conversationId}-{channelId}-{nonce}.
// The skill addresses its replies to that id. Handler looks the reference up,
// continues the caller's conversation as a new turn, and routes the skill's
// activity:
//
//   - endOfConversation: the reference is deleted and the bot sees the activity
//   - event: the bot sees the activity
//   - command and commandResult: names starting with "application/" go to the
//     channel, others to the bot
//   - anything else is sent to the channel
//
// The continuation turn's CallerID marks it as bot-to-bot traffic and the
// reference is available to middleware through ReferenceKey.
package skills
