// Package rate provides Redis-backed fixed-window counters for refresh and
// login throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key layout
// under the configured prefix:
//   - rl:refresh:<client> counts refresh attempts per client IP
//   - rl:login:<identifier> counts failed logins per identifier
//
// # What this package must NOT do
//
//   - Decide what happens to a throttled request; the engine maps ErrRateLimited.
//   - Be imported outside the goSession module.
package rate
