package app

import (
	"context"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/httpserver"
)

// Pinger reports the reachability of a dependency.
type Pinger interface{ Ping(ctx context.Context) error }

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// BuildReadinessChecks returns one check per configured dependency. Nil
// dependencies are skipped so optional integrations don't fail readiness.
func BuildReadinessChecks(store, redis, tika, events Pinger) []httpserver.Check {
	var checks []httpserver.Check
	if store != nil {
		checks = append(checks, httpserver.Check{Name: "store", Probe: store.Ping})
	}
	if redis != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Probe: redis.Ping})
	}
	if tika != nil {
		checks = append(checks, httpserver.Check{Name: "tika", Probe: tika.Ping})
	}
	if events != nil {
		checks = append(checks, httpserver.Check{Name: "events", Probe: events.Ping})
	}
	return checks
}
