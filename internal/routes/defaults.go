package routes

import (
	"fmt"
	"strings"
)

// Defaults are the destinations tracked out of the box.
var Defaults = []Route{
	{Code: "NRT", Name: "Tokyo", Emoji: "🗼", Tier: TierCore},
	{Code: "KIX", Name: "Osaka", Emoji: "🏯", Tier: TierCore},
	{Code: "FUK", Name: "Fukuoka", Emoji: "🍜", Tier: TierCore},
	{Code: "HKG", Name: "Hong Kong", Emoji: "🌃", Tier: TierNormal},
	{Code: "BKK", Name: "Bangkok", Emoji: "🛕", Tier: TierNormal},
	{Code: "DAD", Name: "Da Nang", Emoji: "🏖️", Tier: TierNormal},
	{Code: "TPE", Name: "Taipei", Emoji: "🧋", Tier: TierNormal},
	{Code: "SIN", Name: "Singapore", Emoji: "🦁", Tier: TierNormal},
	{Code: "GUM", Name: "Guam", Emoji: "🌴", Tier: TierNormal},
	{Code: "CDG", Name: "Paris", Emoji: "🥐", Tier: TierNormal},
}

// DefaultRegistry returns a registry seeded with Defaults.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, rt := range Defaults {
		// Defaults are unique and valid.
		_ = r.Register(rt)
	}
	return r
}

// Parse builds a registry from a list like "NRT:Tokyo:core,HKG:Hong Kong".
// The tier is optional and defaults to normal.
func Parse(list string) (*Registry, error) {
	r := NewRegistry()
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		rt := Route{Code: parts[0]}
		if len(parts) > 1 {
			rt.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			rt.Tier = Tier(strings.ToLower(strings.TrimSpace(parts[2])))
		}
		if len(parts) > 3 {
			return nil, fmt.Errorf("routes: malformed entry %q", item)
		}
		if err := r.Register(rt); err != nil {
			return nil, err
		}
	}
	if len(r.All()) == 0 {
		return nil, fmt.Errorf("routes: no routes in %q", list)
	}
	return r, nil
}
