package repository

import "errors"

// ErrCacheMiss indicates the requested key is not in the cache.
var ErrCacheMiss = errors.New("cache miss")
