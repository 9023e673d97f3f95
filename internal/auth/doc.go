// Package auth validates bearer tokens on inbound bot traffic and mints tokens
// for outbound calls.
//
// # Tokens
//
// Channels and calling bots authenticate with HS256 JWTs signed with the
// configured jwt_secret. A valid token becomes an Identity carrying its claims:
//
//	verifier := auth.NewJWTVerifier(secret, auth.WithIssuer(iss), auth.WithAudience(appID))
//	identity, err := verifier.Verify(token)
//
// The app id of the caller is read from the "appid" claim for version 1.0
// tokens and from "azp" for version 2.0 tokens.
//
// # Skill Claims
//
// A token is a skill claim when it carries a version, its audience is not the
// channel service, and its audience differs from the caller's app id. Skill
// claims mark bot-to-bot traffic; the adapter uses them to pick the OAuth scope
// for replies and the typing middleware skips them.
//
// # HTTP
//
// HTTPAuthMiddleware extracts the bearer token, verifies it and attaches the
// Identity to the request context. With a nil verifier every request is
// accepted as anonymous, which is how local development runs.
package auth
