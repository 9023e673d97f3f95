// Package pipeline runs a turn through an ordered chain of middleware before
// handing it to the bot.
//
// # Execution Model
//
// Chain.Run invokes middleware in insertion order. Each middleware receives a
// Next continuation; calling it runs the rest of the chain and then the bot
// handler. Code before next runs before every later middleware, code after next
// runs after all of them have returned:
//
//	chain := pipeline.NewChain().
//	    Use(tracing).
//	    Use(autoSave)
//	err := chain.Run(ctx, tc, bot)
//
// The continuation is an explicit cursor over the remaining middleware, so no
// counter is shared between invocations.
//
// # Short-circuit
//
// A middleware that returns without calling next stops the turn. Later
// middleware and the handler never run and Run returns nil. This is a normal
// outcome (dedupe, auth rejection), not an error.
//
// # Errors
//
// Errors from middleware or the handler propagate unchanged through every
// enclosing next call and out of Run. The chain never logs or swallows them;
// use CatchError or CatchIs to handle a category of errors.
//
// # Nesting
//
// A Chain is itself a Middleware, so chains compose with the same bracketing
// and short-circuit rules.
package pipeline
