package adapters

import (
	"github.com/smallbiznis/rukun/internal/payment/domain"
)

type Registry struct {
	adapters map[domain.Channel]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[domain.Channel]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Channel()] = adapter
	}
	return registry
}

func (r *Registry) Adapter(channel domain.Channel) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}
