package browserapi

import (
	"context"
	"fmt"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/sheinberglab/fleet-gateway/pkg/registry"
)

// RegistryAdapter wraps a *registry.Registry to satisfy this package's
// Registry interface, asserting the narrow registry.Link the registry
// returns out to Evaluator, the wider interface esscmd/gitcmd needs. This
// mirrors pkg/reachability.RegistrySink's adapter, used for the same
// reason: registry.Registry only promises Start/Snapshot/
// SetExtraSubscribeKeys to avoid an import cycle with pkg/homebase.
type RegistryAdapter struct {
	Reg *registry.Registry
}

func (a RegistryAdapter) Ensure(ctx context.Context, address string) (Evaluator, error) {
	link, err := a.Reg.Ensure(ctx, address)
	if err != nil {
		return nil, err
	}

	ev, ok := link.(Evaluator)
	if !ok {
		return nil, fmt.Errorf("browserapi: link for %s does not support eval", address)
	}

	return ev, nil
}

func (a RegistryAdapter) Add(ctx context.Context, address, displayName string) (models.Device, error) {
	return a.Reg.Add(ctx, address, displayName)
}

func (a RegistryAdapter) Addresses() []string {
	return a.Reg.Addresses()
}
