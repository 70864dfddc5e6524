// Package transport coordinates the geographically-constrained delivery of
// fragment sets: it assigns fragments to carrier agents, places destinations
// under the geo policy, tracks mission state against a hard deadline, and
// gates every delivery handoff behind protocol-order authentication.
//
// Agent state transitions are single compare-and-swap operations, so no two
// missions can hold the same agent Carrying at once. Mission progression is
// event-driven; deadline watchers are scheduled continuations on the injected
// clock rather than blocked threads, so thousands of missions can be
// outstanding concurrently.
package transport
