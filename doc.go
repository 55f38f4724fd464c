// Package authcore provides an embeddable authentication and
// account-security engine: credential verification with brute-force
// lockout, JWT access/refresh tokens with revocation, TOTP two-factor
// with one-time backup codes, a session registry, sliding-window rate
// limiting, and an async audit trail.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, AuditEvent, etc.). Relational
// persistence lives behind the AccountStore/SessionStore/
// BackupCodeStore/AuditStore interfaces (the store/ package implements
// them on Postgres); short-lived state such as rate windows, pending
// enrollments, reset grants, and the token denylist lives in Redis.
//
// # What this package must NOT do
//
//   - Expose Redis clients or storage encodings in its public API.
//   - Perform I/O during construction (Builder is wiring-only until
//     Build hashes the decoy credential).
//   - Render or deliver notifications; that is the Notifier's job.
package authcore
