// Package rate provides a Redis-backed sliding-window limiter for
// security-sensitive entry points.
//
// # Window semantics
//
// Each (endpoint, client IP) pair maps to one key holding a
// binary-encoded list of attempt timestamps. On every check the list
// is pruned to the window, and the attempt is admitted only when the
// remaining count is under the limit. Rejections carry the delay until
// the oldest in-window attempt expires. Key prefix: rl:.
//
// # What this package must NOT do
//
//   - Decide which endpoints are limited (the engine config does).
//   - Be imported outside this module.
package rate
