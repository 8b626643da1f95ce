// Package resolver determines the public and private IPv4 addresses exported
// to a guest's /etc/environment.
package resolver

import (
	"context"
	"sort"

	"github.com/containerd/log"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
)

// Ordinals indexes adapters the same way the guest enumerates interfaces:
// adapters of kind none are dropped, the rest keep their provider order and
// are numbered from 0.
func Ordinals(adapters []domain.AdapterInfo) map[int]domain.AdapterInfo {
	sorted := make([]domain.AdapterInfo, len(adapters))
	copy(sorted, adapters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AdapterNumber < sorted[j].AdapterNumber
	})

	ordinals := make(map[int]domain.AdapterInfo, len(sorted))
	for _, adapter := range sorted {
		if adapter.Kind == domain.AdapterNone {
			continue
		}
		ordinals[len(ordinals)] = adapter
	}
	return ordinals
}

// Resolve determines the addresses from the adapter topology. Hostonly
// adapters provide the private address and bridged adapters the public one;
// a static spec supplies its ip, anything else is read from the live guest
// interface at the same ordinal.
func Resolve(ctx context.Context, specs []domain.NetworkSpec, adapters []domain.AdapterInfo, facts guest.Facts) (domain.ResolvedAddresses, error) {
	logger := log.G(ctx)
	ordinals := Ordinals(adapters)

	names, err := facts.InterfaceNames(ctx)
	if err != nil {
		return domain.ResolvedAddresses{}, err
	}

	def, err := defaultAddress(ctx, facts, names)
	if err != nil {
		return domain.ResolvedAddresses{}, err
	}

	var resolved domain.ResolvedAddresses
	for _, spec := range specs {
		adapter, ok := ordinals[spec.InterfaceIndex]
		if !ok {
			logger.WithField("interface", spec.InterfaceIndex).Debug("no adapter backs network, ignoring for address resolution")
			continue
		}

		var target *string
		switch adapter.Kind {
		case domain.AdapterHostOnly:
			target = &resolved.Private
		case domain.AdapterBridged:
			target = &resolved.Public
		default:
			continue
		}

		addr, err := specAddress(ctx, spec, names, facts)
		if err != nil {
			return domain.ResolvedAddresses{}, err
		}
		if addr != "" {
			*target = addr
		}
	}

	return withFallbacks(ctx, resolved, def), nil
}

func specAddress(ctx context.Context, spec domain.NetworkSpec, names []string, facts guest.Facts) (string, error) {
	if spec.IsStatic() && spec.IP != "" {
		return spec.IP, nil
	}
	if spec.InterfaceIndex < 0 || spec.InterfaceIndex >= len(names) {
		log.G(ctx).WithField("interface", spec.InterfaceIndex).Warn("no guest interface at ordinal, cannot read live address")
		return "", nil
	}
	return facts.InterfaceIPv4(ctx, names[spec.InterfaceIndex])
}

func defaultAddress(ctx context.Context, facts guest.Facts, names []string) (string, error) {
	if len(names) == 0 {
		log.G(ctx).Warn("guest reported no interfaces, defaulting to loopback")
		return domain.LoopbackAddress, nil
	}
	addr, err := facts.InterfaceIPv4(ctx, names[0])
	if err != nil {
		return "", err
	}
	if addr == "" {
		log.G(ctx).WithField("interface", names[0]).Warn("first interface has no address, defaulting to loopback")
		return domain.LoopbackAddress, nil
	}
	return addr, nil
}

func withFallbacks(ctx context.Context, resolved domain.ResolvedAddresses, def string) domain.ResolvedAddresses {
	if resolved.Private == "" {
		log.G(ctx).WithField("address", def).Info("no private address resolved, using default")
		resolved.Private = def
	}
	if resolved.Public == "" {
		log.G(ctx).WithField("address", resolved.Private).Info("no public address resolved, using private address")
		resolved.Public = resolved.Private
	}
	return resolved
}
