// Package async provides goroutine helpers for background work: panic
// recovery, per-task timeouts, and logging through the context logger.
//
// SafeGo runs one fire-and-forget task:
//
//	async.SafeGo(ctx, time.Minute, "cache warmup", func(ctx context.Context) error {
//		_, err := store.Warm(ctx, nid, "")
//		return err
//	})
//
// Batch fans a slice out over a bounded WorkerPool and returns every error:
//
//	errs := async.Batch(ctx, paths, 4, "taxonomy import", time.Minute, importOne)
package async
