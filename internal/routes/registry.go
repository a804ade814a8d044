package routes

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tier controls how often a route is sampled.
type Tier string

const (
	// TierCore routes are collected on every invocation.
	TierCore Tier = "core"
	// TierNormal routes are collected once a day, inside the daily window.
	TierNormal Tier = "normal"
)

// Route is a destination tracked from the fixed origin.
type Route struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
	Tier  Tier   `json:"tier"`
}

// Registry holds the configured routes in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	routes map[string]Route
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

// Register adds a route. Codes are upper-cased; registering a code twice is an error.
func (r *Registry) Register(rt Route) error {
	rt.Code = strings.ToUpper(strings.TrimSpace(rt.Code))
	if len(rt.Code) != 3 {
		return fmt.Errorf("routes: invalid IATA code %q", rt.Code)
	}
	if rt.Tier == "" {
		rt.Tier = TierNormal
	}
	if rt.Tier != TierCore && rt.Tier != TierNormal {
		return fmt.Errorf("routes: unknown tier %q for %s", rt.Tier, rt.Code)
	}
	if rt.Name == "" {
		rt.Name = rt.Code
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.routes[rt.Code]; dup {
		return fmt.Errorf("routes: %s registered twice", rt.Code)
	}
	r.routes[rt.Code] = rt
	r.order = append(r.order, rt.Code)
	return nil
}

// Get returns a route by code.
func (r *Registry) Get(code string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[strings.ToUpper(code)]
	return rt, ok
}

// All returns every route in registration order.
func (r *Registry) All() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.routes[code])
	}
	return out
}

// Codes returns the sorted route codes.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.order))
	keys = append(keys, r.order...)
	sort.Strings(keys)
	return keys
}

// Partition splits the routes into core and normal tiers, keeping order.
func (r *Registry) Partition() (core, normal []Route) {
	for _, rt := range r.All() {
		if rt.Tier == TierCore {
			core = append(core, rt)
		} else {
			normal = append(normal, rt)
		}
	}
	return core, normal
}
