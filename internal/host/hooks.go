// Package host provides the collaborators a translation updater relies on:
// a filter/action hook registry, the site environment (locales, installed
// translations, permissions), a filesystem abstraction and a package downloader.
package host

import (
	"context"
	"sort"
	"sync"
)

// Hook names used by the updater.
const (
	FilterUpdatePlugins         = "site_transient_update_plugins"
	FilterUpdateThemes          = "site_transient_update_themes"
	FilterTranslationsAPI       = "translations_api"
	FilterTranslationsAPIResult = "translations_api_result"
	ActionTransientChanged      = "transient_changed"
	ActionLocaleChanged         = "locale_changed"
	ActionTranslationsInstalled = "translations_installed"
)

// Transient names passed to ActionTransientChanged that invalidate catalogs.
const (
	TransientUpdatePlugins = "update_plugins"
	TransientUpdateThemes  = "update_themes"
)

// DefaultPriority is the priority most callbacks register with.
const DefaultPriority = 10

// FilterFunc receives the current value and returns it unchanged or replaced.
type FilterFunc func(ctx context.Context, value any, args ...any) any

// ActionFunc reacts to an event.
type ActionFunc func(ctx context.Context, args ...any)

// HookID identifies a registered callback for removal.
type HookID uint64

type hookEntry struct {
	id       HookID
	priority int
	filter   FilterFunc
	action   ActionFunc
}

// Hooks is a filter/action registry. Callbacks run in ascending priority, then
// registration order. Safe for concurrent use.
type Hooks struct {
	mu      sync.RWMutex
	nextID  HookID
	filters map[string][]hookEntry
	actions map[string][]hookEntry
}

// NewHooks creates an empty registry.
func NewHooks() *Hooks {
	return &Hooks{
		filters: make(map[string][]hookEntry),
		actions: make(map[string][]hookEntry),
	}
}

// AddFilter registers fn on the named filter.
func (h *Hooks) AddFilter(name string, priority int, fn FilterFunc) HookID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.filters[name] = insert(h.filters[name], hookEntry{id: h.nextID, priority: priority, filter: fn})
	return h.nextID
}

// AddAction registers fn on the named action.
func (h *Hooks) AddAction(name string, priority int, fn ActionFunc) HookID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.actions[name] = insert(h.actions[name], hookEntry{id: h.nextID, priority: priority, action: fn})
	return h.nextID
}

// Remove unregisters a callback. It reports whether the id was found.
func (h *Hooks) Remove(id HookID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range []map[string][]hookEntry{h.filters, h.actions} {
		for name, entries := range set {
			for i, e := range entries {
				if e.id == id {
					set[name] = append(entries[:i:i], entries[i+1:]...)
					return true
				}
			}
		}
	}
	return false
}

// ApplyFilters threads value through every callback on name.
func (h *Hooks) ApplyFilters(ctx context.Context, name string, value any, args ...any) any {
	for _, e := range h.snapshot(h.filters, name) {
		value = e.filter(ctx, value, args...)
	}
	return value
}

// DoAction runs every callback on name.
func (h *Hooks) DoAction(ctx context.Context, name string, args ...any) {
	for _, e := range h.snapshot(h.actions, name) {
		e.action(ctx, args...)
	}
}

// Has reports whether any callback is registered on name.
func (h *Hooks) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.filters[name])+len(h.actions[name]) > 0
}

// snapshot copies the callbacks so they run without the lock held.
func (h *Hooks) snapshot(set map[string][]hookEntry, name string) []hookEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]hookEntry(nil), set[name]...)
}

func insert(entries []hookEntry, e hookEntry) []hookEntry {
	entries = append(entries, e)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	return entries
}
