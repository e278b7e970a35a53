package profiles

import "github.com/odosui/agora/pkg/engines"

// EngineFactory builds a live engine for a profile, seeded with history.
type EngineFactory func(p Profile, history []engines.Turn) (engines.Engine, error)

// NewEngineFactory returns a factory that looks up vendor credentials with apiKey.
func NewEngineFactory(apiKey func(engines.Vendor) string) EngineFactory {
	return func(p Profile, history []engines.Turn) (engines.Engine, error) {
		return engines.New(p.EngineSpec(apiKey(p.Vendor), history))
	}
}
