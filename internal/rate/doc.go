// Package rate throttles credential attempts made from the CLI with
// Redis-backed fixed-window counters.
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit. Keys, under the configured prefix:
//   - throttle:signin:<email> counts rejected sign-ins
//   - throttle:reset:<email> counts password-reset requests
//
// The auth server applies its own limits; these only stop a script from
// hammering it with the same email.
package rate
