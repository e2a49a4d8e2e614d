// Package session hosts one open-cache dialog: the Selection being edited,
// its debounced validity, and the gate that admits one open attempt at a time.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Session.Run owns all state. Edits, triggers, browse requests, timer
// expiries, validity results and open results are events on one FIFO
// queue, processed in order by the Run goroutine. That goroutine is the
// interaction context: Observer and Handoff callbacks run on it, so
// callers need no extra locking for state they mutate there.
//
// Background Work:
// Existence checks and store opens are blocking I/O. They run on the
// Executor against an immutable Selection snapshot and report back by
// enqueueing an event.
//
// Debounce:
// Every change to the Selection resets one deadline on the Clock. When the
// deadline expires the loop snapshots the Selection as it is at expiry,
// stamps it with the next sequence number and checks it on the Executor.
// A result older than the last published one is dropped, so publications
// never go backwards. Every accepted result is published, changed or not.
//
// Open Gate:
//
//	Idle ──valid──▶ Triggerable ──Trigger──▶ InFlight
//	  ▲               │  ▲                     │
//	  └───invalid─────┘  └──resolved (valid)───┤
//	  ▲                                        │
//	  └──────────resolved (invalid)────────────┘
//
// A Trigger outside Triggerable is dropped, not queued.
//
// Shutdown:
// An in-flight open is never cancelled. If the session stops first, the
// result is discarded on arrival: a successful handle is closed and never
// handed off (Observer.AttemptDiscarded reports it).
package session
