// Package path builds and maintains the onion paths requests travel over.
//
// A Manager owns a small set of paths, each an ordered list of distinct
// nodes whose first node is a pinned guard. Paths are immutable: a path
// that fails is evicted and a replacement is built in the background, never
// patched in place.
//
// Each path moves through these states:
//
//	Empty -> Building -> Ready -> Degraded -> Dead
//	                                 \-> (replacement) Rebuilding -> Ready
//
// All shared state (guards, paths and their states) is guarded by a single
// mutex. Concurrent callers that find no usable path share one build.
//
// Failures are reported with a FailureKind. Relay, authentication and
// missing-node failures condemn the path; a global failure also forces the
// node pool to be refreshed from the directory.
package path
