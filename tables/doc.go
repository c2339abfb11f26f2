// Package tables implements a registry of named lookup tables for packet
// classification.
//
// Each table has a key type (address prefix, interface name, number or
// flow) and is backed by a pluggable Algorithm. The control plane creates,
// fills, flushes, swaps and destroys tables through the Registry, while the
// classification path calls Registry.Lookup by table index without taking
// any lock.
package tables
