// Package cache puts a Redis read-through cache in front of the taxonomy
// reads that every classification filter performs.
//
// Subtree resolution asks storage for an entry by URN and then for the
// candidates below its URL. Both answers change only when a taxonomy is
// imported, so they are cached in Redis with per-kind TTLs taken from
// storage.Config.CacheTTL and dropped whenever the wrapped storage writes a
// taxonomy or one of its entries.
//
// # Usage
//
//	rc, err := cache.NewRedisClient(cfg)
//	if err != nil {
//	    return err
//	}
//	store := cache.New(backend, rc, logger)
//	n, err := store.Warm(ctx, "lang", "1")
//
// Redis failures never fail a read. They are logged and the call falls
// through to the wrapped storage.
package cache
