// Package plugin provides a registry of provider factories. Provider packages
// register themselves from init(), and the gateway builds per-connection
// instances by kind and name without importing concrete providers.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
)

// Provider kinds.
const (
	KindSTT    = "stt"
	KindLLM    = "llm"
	KindTTS    = "tts"
	KindSearch = "search"
	KindNews   = "news"
)

// ErrNotFound is returned when no plugin matches a kind and name.
var ErrNotFound = errors.New("plugin not found")

// Config is passed to a factory when building a provider instance.
type Config struct {
	APIKey     string
	Model      string
	Voice      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Options    map[string]any
}

// String returns the named option or def.
func (c Config) String(name, def string) string {
	if v, ok := c.Options[name].(string); ok && v != "" {
		return v
	}
	return def
}

// Factory creates a new provider instance from configuration.
// The returned value is asserted to the interface matching the plugin kind.
type Factory func(cfg Config) (any, error)

// Plugin represents a registered plugin with its metadata.
type Plugin struct {
	Kind        string         // "stt", "llm", "tts", "search", "news"
	Name        string         // Plugin name (e.g., "assemblyai", "gemini")
	Factory     Factory        // Factory function to create instances
	Description string         // Human-readable description
	Version     string         // Plugin version
	Config      map[string]any // Configuration schema or defaults
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin // [kind][name] -> Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]map[string]*Plugin)}
}

var globalRegistry = NewRegistry()

// Default returns the process-wide registry that init() functions fill.
func Default() *Registry {
	return globalRegistry
}

// Register adds a plugin to the global registry.
// Panics if a plugin with the same kind and name is already registered.
func Register(kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a plugin with additional metadata to the global registry.
// Panics if a plugin with the same kind and name is already registered.
func RegisterWithMetadata(plugin *Plugin) {
	globalRegistry.RegisterWithMetadata(plugin)
}

// Get retrieves a plugin factory from the global registry.
func Get(kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns all registered plugins of a specific kind.
// If kind is empty, returns all plugins.
func List(kind string) []*Plugin {
	return globalRegistry.List(kind)
}

// ListKinds returns all registered plugin kinds.
func ListKinds() []string {
	return globalRegistry.ListKinds()
}

// Register adds a plugin to this registry instance.
func (r *Registry) Register(kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{
		Kind:    kind,
		Name:    name,
		Factory: factory,
	})
}

// RegisterWithMetadata adds a plugin with metadata to this registry instance.
// Panics on empty kind, name or factory and on duplicates.
func (r *Registry) RegisterWithMetadata(plugin *Plugin) {
	if plugin.Kind == "" {
		panic("plugin kind cannot be empty")
	}
	if plugin.Name == "" {
		panic("plugin name cannot be empty")
	}
	if plugin.Factory == nil {
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[plugin.Kind] == nil {
		r.plugins[plugin.Kind] = make(map[string]*Plugin)
	}
	if existing, exists := r.plugins[plugin.Kind][plugin.Name]; exists {
		panic(fmt.Sprintf("plugin %s/%s already registered (existing version: %s, new version: %s)",
			plugin.Kind, plugin.Name, existing.Version, plugin.Version))
	}
	r.plugins[plugin.Kind][plugin.Name] = plugin
}

// Get retrieves a plugin factory from this registry instance.
func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plugins[kind][name]
	if !exists {
		return nil, false
	}
	return p.Factory, true
}

// Has reports whether a plugin is registered.
func (r *Registry) Has(kind, name string) bool {
	_, ok := r.Get(kind, name)
	return ok
}

// List returns all registered plugins of a specific kind.
// If kind is empty, returns all plugins sorted by kind then name.
func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plugins []*Plugin
	for k, kindMap := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range kindMap {
			plugins = append(plugins, p)
		}
	}

	sort.Slice(plugins, func(i, j int) bool {
		if plugins[i].Kind != plugins[j].Kind {
			return plugins[i].Kind < plugins[j].Kind
		}
		return plugins[i].Name < plugins[j].Name
	})
	return plugins
}

// ListKinds returns all registered plugin kinds in sorted order.
func (r *Registry) ListKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Clear removes all plugins from this registry instance.
// This is primarily useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]map[string]*Plugin)
}

// build runs the named factory.
func (r *Registry) build(kind, name string, cfg Config) (any, error) {
	factory, ok := r.Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	v, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", kind, name, err)
	}
	return v, nil
}
