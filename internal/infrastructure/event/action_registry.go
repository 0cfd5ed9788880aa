// Package event dispatches relay actions to in-process handlers or to
// configured webhooks.
package event

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/erp/kksync/internal/domain/integration"
	"go.uber.org/zap"
)

// ErrActionNotFound is returned when no handler or webhook serves an action
var ErrActionNotFound = errors.New("action not found")

// ActionHandler handles one named action in process
type ActionHandler func(ctx context.Context, params map[string]any) (integration.ActionResult, error)

// ActionRegistry resolves action names to handlers. Unregistered actions go
// to the fallback invoker when one is set.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
	fallback integration.ActionInvoker
	logger   *zap.Logger
}

// NewActionRegistry creates an empty registry. fallback may be nil.
func NewActionRegistry(fallback integration.ActionInvoker, logger *zap.Logger) *ActionRegistry {
	return &ActionRegistry{
		handlers: make(map[string]ActionHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register binds handler to action, replacing any previous binding
func (r *ActionRegistry) Register(action string, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = handler
}

// Actions returns the registered action names, sorted
func (r *ActionRegistry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs action. A panicking handler yields a 500 result and an error.
func (r *ActionRegistry) Invoke(ctx context.Context, action string, params map[string]any) (result integration.ActionResult, err error) {
	r.mu.RLock()
	handler, ok := r.handlers[action]
	r.mu.RUnlock()

	if !ok {
		if r.fallback == nil {
			return integration.ActionResult{
				StatusCode: http.StatusNotFound,
				Body:       map[string]any{"error": fmt.Sprintf("action %s is not available", action)},
			}, fmt.Errorf("%w: %s", ErrActionNotFound, action)
		}
		return r.fallback.Invoke(ctx, action, params)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("action handler panicked",
				zap.String("action", action),
				zap.Any("panic", rec),
			)
			result = integration.ActionResult{
				StatusCode: http.StatusInternalServerError,
				Body:       map[string]any{"error": "server error"},
			}
			err = fmt.Errorf("action %s panicked: %v", action, rec)
		}
	}()

	return handler(ctx, params)
}

var _ integration.ActionInvoker = (*ActionRegistry)(nil)
