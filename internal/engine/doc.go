// Package engine runs groups of cases whose bodies execute concurrently on
// one cooperative loop while setup and teardown stay sequential.
//
// Execute buckets the cases by group key, runs every group through the
// coordinator and hands the ungrouped cases back to the caller. Within a
// group, per-case resources are cloned for each member and broader resources
// stay shared, so every member observes the same resource lifetimes it would
// observe if it ran alone.
package engine
