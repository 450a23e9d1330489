// Package history persists per-(number, chunk) send outcomes so past runs
// can be audited. It never sits on the send path: append failures are
// logged and dropped.
//
// Drivers:
//   - none:   default, nothing is written
//   - file:   append-only JSON Lines
//   - sqlite: requires the "sqlite" build tag
package history
