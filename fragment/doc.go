// Package fragment implements the temporal fragmentation core: splitting a
// message into n overlapping, independently encrypted, time-boxed fragments
// such that any k of them reconstruct the original byte-exact content, and
// reassembling them before their expiry deadline.
//
// # Coverage windows
//
// A message of length len is split with stride s = ceil(len/n). Fragment i
// carries the wrapping window starting at offset i*s whose length places
// every byte of the message in at least n-k+1 fragments (plus a configurable
// extra-overlap margin). Losing any n-k fragments therefore still leaves full
// coverage: any k fragments, ordered by index, reassemble the message
// exactly. With fewer than k fragments reconstruction is refused outright.
//
// # Time-boxing
//
// Every fragment runs an independent expiry task on an injected clock. Expiry
// overwrites the sealed payload and the transport key with zeros in place
// under the owning origin's lock before the fragment becomes Expired, so no
// reader can observe half-zeroed bytes: a read either completes its copy
// before expiry takes the lock, or it finds the fragment Expired. Expiry
// always wins the race.
//
// # Reconstruction
//
// The ReconstructionEngine gathers all still-available fragments of an
// origin, requires at least the set's RequiredCount, decrypts each window
// under its own transport key, reassembles by index and verifies the result
// against the origin hash shared by the set. Consumed fragments take the same
// secure-erase path as expired ones.
package fragment
