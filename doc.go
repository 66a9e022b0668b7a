// Package xfer moves large, immutable objects between two storage endpoints
// without holding the whole object in memory.
//
// An object is read as inclusive byte ranges from a Source and written as
// numbered parts into a multipart session on a Destination. Every part must be
// acknowledged before the session is committed, and any failure after the
// session opens aborts it, so the destination either holds the complete object
// or nothing.
//
// Key features:
//   - Endpoint adapters for S3, S3-compatible servers, Storj, GCS, local filesystems and memory
//   - Bounded part concurrency with one buffer per in-flight part
//   - Per-part retries with exponential backoff and jitter
//   - A SQLite session journal so sessions orphaned by a crash can be aborted
//   - Structured logging, Prometheus metrics and progress tracking
//
// Example usage:
//
//	client, err := xfer.New(
//	    xfer.WithSource("east", eastBucket),
//	    xfer.WithDestination("west", westBucket),
//	    xfer.WithPartSize(100*1024*1024),
//	)
//	if err != nil {
//	    return err
//	}
//
//	outcome, err := client.Transfer(ctx, xfertypes.TransferRequest{
//	    Source:      xfertypes.ObjectRef{Endpoint: "east", Object: "backups/db.tar"},
//	    Destination: xfertypes.ObjectRef{Endpoint: "west", Object: "backups/db.tar"},
//	})
//	if err != nil {
//	    return err // outcome.Kind is Aborted; nothing was created
//	}
package xfer
