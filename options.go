package aegis

import (
	"log/slog"

	"github.com/xraph/aegis/catalog"
	"github.com/xraph/aegis/hook"
	"github.com/xraph/aegis/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithCatalog sets the permission catalog. Defaults to catalog.Default.
func WithCatalog(c *catalog.Catalog) Option { return func(e *Engine) { e.catalog = c } }

// WithDirectory sets the resource directory used for owner-scoped
// constraint evaluation.
func WithDirectory(d ResourceDirectory) Option { return func(e *Engine) { e.directory = d } }

// WithConstraintEvaluator sets the constraint evaluator.
func WithConstraintEvaluator(ev ConstraintEvaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithCache sets the decision cache.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) {
		if e.hooks == nil {
			e.hooks = hook.NewRegistry(e.logger)
		}
		e.hooks.Register(h)
	}
}
