package store

import "fmt"

// Open creates the configured state store backend
func Open(backend, redisURL, databaseURL string) (StateStore, error) {
	switch backend {
	case "redis":
		return NewRedisStore(redisURL)
	case "postgres":
		return NewPostgresStore(databaseURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
