// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register
// hooks at startup to receive events about style delivery and registry
// operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetEngineHooks(&myEngineHooks{})
//	    observability.SetRegistryHooks(&myRegistryHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Engine().OnFlush(ctx, entries, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// EngineHooks receives events from the style delivery engine.
type EngineHooks interface {
	// OnApply records one style application attempt.
	OnApply(ctx context.Context, styleID, strategy string, err error)

	// OnFlush records a batch flush.
	OnFlush(ctx context.Context, entries int, duration time.Duration)

	// OnStrategyChange records a promotion of the active strategy
	// after a successful policy-violation fallback.
	OnStrategyChange(ctx context.Context, from, to string)

	// OnBudgetExceeded records an advisory performance-budget overrun.
	// Stage is "flush" or "refresh".
	OnBudgetExceeded(ctx context.Context, stage string, elapsed, budget time.Duration)
}

// RegistryHooks receives events from style registry operations.
type RegistryHooks interface {
	// OnQuery records a registry query.
	OnQuery(ctx context.Context, url string, count int, err error)

	// OnEvent records a pushed update/remove notification.
	OnEvent(ctx context.Context, eventType, styleID string)
}

// NoopEngineHooks is a no-op implementation of EngineHooks.
type NoopEngineHooks struct{}

func (NoopEngineHooks) OnApply(context.Context, string, string, error)   {}
func (NoopEngineHooks) OnFlush(context.Context, int, time.Duration)      {}
func (NoopEngineHooks) OnStrategyChange(context.Context, string, string) {}
func (NoopEngineHooks) OnBudgetExceeded(context.Context, string, time.Duration, time.Duration) {
}

// NoopRegistryHooks is a no-op implementation of RegistryHooks.
type NoopRegistryHooks struct{}

func (NoopRegistryHooks) OnQuery(context.Context, string, int, error) {}
func (NoopRegistryHooks) OnEvent(context.Context, string, string)     {}

var (
	engineHooks   EngineHooks   = NoopEngineHooks{}
	registryHooks RegistryHooks = NoopRegistryHooks{}
	hooksMu       sync.RWMutex
)

// SetEngineHooks registers custom engine hooks.
// This should be called once at application startup before any delivery operations.
func SetEngineHooks(h EngineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		engineHooks = h
	}
}

// SetRegistryHooks registers custom registry hooks.
// This should be called once at application startup before any registry operations.
func SetRegistryHooks(h RegistryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		registryHooks = h
	}
}

// Engine returns the registered engine hooks.
func Engine() EngineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return engineHooks
}

// Registry returns the registered registry hooks.
func Registry() RegistryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return registryHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	engineHooks = NoopEngineHooks{}
	registryHooks = NoopRegistryHooks{}
}
