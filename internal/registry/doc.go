// Package registry holds the set of authenticated chat connections.
//
// Contents:
//   - Registry: a mutex-guarded map keyed by ConnID, bounded by a fixed
//     capacity.
//
// The registry never performs network I/O. Callers take a Snapshot and
// write to connections with no registry lock held.
package registry
