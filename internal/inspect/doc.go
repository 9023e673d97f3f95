// Package inspect lets an observer watch a turn without taking part in it.
//
// Interceptor is middleware that hands trace activities describing the
// inbound activity, every outbound send, update, and delete, any turn error,
// and the final bot state to an Inspector. An Inspector that fails is logged
// and ignored so a broken observer never breaks the conversation.
//
// LogInspector is a ready-made Inspector that writes everything to slog.
package inspect
