// Package iam is the token and authorization decision engine behind the
// platform's user service.
//
// Bearer tokens:
//   - TokenService signs and verifies HS256 bearer tokens. Decoding always
//     yields a fixed Claims struct (subject, email, role, issued/expiry), never
//     a free-form claim map. Expiry is evaluated against the injected clock at
//     decode time.
//
// Password reset:
//   - RateLimiter gates reset initiation per email with a cooldown. Allowed
//     requests record their instant; rejected ones leave the entry untouched.
//   - ResetTokenStore issues single-use tokens bound to an email and a TTL.
//     Redeem validates and consumes a token as one step so two concurrent
//     submissions can never both succeed.
//   - Notifier receives the reset link after the token is stored. Dispatch is
//     fire-and-forget; delivery failures are logged and never roll back the
//     token.
//
// Authorization:
//   - AuthorizationEngine is a pure decision table over (claims, target
//     record, operation, submitted record). Updates additionally require the
//     submitted record to agree with the stored one on every identity field.
//   - AccountLifecycleGuard restricts employee activation toggles to admins.
//
// Activity sinks:
//   - ActivitySink receives audit events (tokens issued, reset initiated,
//     limited or completed, employee status changes). Sinks run best-effort.
package iam
