// internal/common/database/health.go
package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pinger is satisfied by every client in this package.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckAll pings every dependency concurrently and returns the failures by name.
func CheckAll(ctx context.Context, timeout time.Duration, deps map[string]Pinger) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		g        errgroup.Group
		failures = map[string]error{}
	)
	for name, dep := range deps {
		g.Go(func() error {
			if err := dep.Ping(ctx); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// Names returns the sorted keys of a failure map for stable reporting.
func Names(failures map[string]error) []string {
	names := make([]string, 0, len(failures))
	for n := range failures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
