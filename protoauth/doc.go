// Package protoauth implements protocol-order behavioral authentication for
// transport agent pairs.
//
// Two agents that have interacted before share an expectation of the order in
// which abstract protocol steps occur between them. The expected order is
// synthesized deterministically from the pair's identity (either party
// computes the same base pattern independently, with no shared live channel),
// transformed by the operational context, and evolved over the lifetime of
// the relationship so that captured orders age out of validity.
//
// Authentication compares a presented step order against the expectation
// using a rank-correlation similarity (a Kendall-tau statistic rescaled to
// [0,1]) with a penalty for extra or missing steps and a small, capped
// leniency bonus for long-established relationships. The scoring formula is a
// pluggable strategy; the default weights and the acceptance threshold are
// tunable policy constants.
//
// A malformed or garbage presented order is never an error: it simply scores
// low and is rejected. An unrecognized context fails closed, scored as the
// normal context with an anomaly recorded, never as a bypass.
package protoauth
