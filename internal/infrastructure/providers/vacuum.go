package providers

import (
	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
)

// NewVacuumAdapter wires the robot vacuum integration. The vacuum
// vendor never demands a second factor in practice, but the shared
// challenge machinery handles it if that changes.
func NewVacuumAdapter(deps Deps) ports.ProviderAdapter {
	return newAdapter(domain.ProviderVacuum, deps)
}
