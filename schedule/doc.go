// Package schedule defines the Schedule capability and its built-in
// variants: cron expressions, a fluent builder, English phrases, windows and
// custom functions.
//
// A Schedule is a pure function from a reference instant to the next
// instant strictly after it, or an exhausted signal. Built-in variants
// evaluate on the wall clock of the reference's location, so binding a
// schedule to a timezone (see Bind) is what decides "9:30 where".
//
// # Daylight saving
//
// Wall-clock results are mapped back to instants with Resolve:
//
//   - a wall time that occurs twice (fall-back fold) resolves to the
//     earlier instant, and the repeated hour does not fire again;
//   - a wall time that does not exist (spring-forward gap) resolves to the
//     first instant after the gap, so "daily at 2:30" runs at 3:00 on that
//     day and several gap times collapse into one firing.
//
// Results are always strictly after the reference.
package schedule
