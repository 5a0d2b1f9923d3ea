// Package auth verifies bearer tokens and enforces scopes on the command API.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public key).
// The "sub" claim becomes the issuer recorded on every command the caller
// dispatches. Scopes:
//
//   - read: list handlers and permission grants
//   - control: dispatch commands and change grants
//   - telemetry: subscribe to the lifecycle event stream
package auth
