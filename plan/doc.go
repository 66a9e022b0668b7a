// Package plan computes the ordered byte ranges that cover an object exactly once.
//
// A Plan is built once from the probed object size and the configured part size
// and is read-only afterwards. Part numbers are 1-based and contiguous; ranges are
// inclusive on both ends and partition [0, total) with no gap and no overlap.
// An empty object yields a single zero-length part so that destinations which
// require at least one part can still commit.
package plan
