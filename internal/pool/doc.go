// Package pool provides memory management for part buffers.
//
// A transfer holds at most one buffer per in-flight part, so peak memory is
// bounded by concurrency times part size. Buffers are recycled between parts
// and between transfers that share a part size.
package pool
