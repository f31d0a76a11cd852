package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type Resolver struct {
	hosts map[string]string
	mu    sync.RWMutex
}

// NewResolver creates a new memory resolver from a comma-separated string
// Format: "alias=host,..."
// Example: "echo=127.0.0.1,staging=echo.staging.internal"
func NewResolver(mappingStr string) (*Resolver, error) {
	hosts := make(map[string]string)
	if mappingStr == "" {
		return &Resolver{hosts: hosts}, nil
	}

	pairs := strings.Split(mappingStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(strings.TrimSpace(pair), "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid mapping format: %s", pair)
		}
		alias := strings.TrimSpace(parts[0])
		host := strings.TrimSpace(parts[1])
		if alias == "" || host == "" {
			return nil, fmt.Errorf("invalid mapping format: %s", pair)
		}
		hosts[alias] = host
	}

	return &Resolver{hosts: hosts}, nil
}

// Resolve rewrites known aliases. Unknown hosts are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, error) {
	r.mu.RLock()
	target, ok := r.hosts[host]
	r.mu.RUnlock()

	if !ok {
		return host, nil
	}
	return target, nil
}
