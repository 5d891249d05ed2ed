// Package auth provides the account session and credential lifecycle:
// password verification, brute force lockout, HS256 token issuance, logout
// revocation and request authentication, plus the HTTP surface around them.
//
// Sessions:
//   - SessionManager.Login checks the account flags before the password and
//     persists every failed attempt. The attempt that reaches the configured
//     limit locks the account and only ResetLockout unlocks it again.
//   - Logout records the token in the RevocationLedger until its natural
//     expiry. Refresh hands out a new access token for the same refresh token.
//
// Requests:
//   - RequestAuthenticator never fails a request. It returns an Identity or
//     nothing, and the middleware/bearer package decides what to do with that.
//
// Activity sinks:
//   - ActivitySink receives login, lockout, logout, refresh and registration
//     events. A sink error is logged and never fails the operation.
package auth
