package resolver

import (
	"context"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// Declared network kinds, as named in a Vagrantfile
const (
	PublicNetwork  = "public_network"
	PrivateNetwork = "private_network"
)

// DeclaredNetwork is a network declared in configuration with an optional ip
type DeclaredNetwork struct {
	Kind string
	IP   string
}

// ResolveDeclared is the legacy resolver. It only looks at statically
// declared ips and ignores the adapter topology of the guest, so it is used
// where no guest is reachable. The last declaration of each kind wins.
func ResolveDeclared(ctx context.Context, declared []DeclaredNetwork, def string) domain.ResolvedAddresses {
	var resolved domain.ResolvedAddresses
	for _, network := range declared {
		if network.IP == "" {
			continue
		}
		switch network.Kind {
		case PublicNetwork:
			resolved.Public = network.IP
		case PrivateNetwork:
			resolved.Private = network.IP
		}
	}
	return withFallbacks(ctx, resolved, def)
}

// Declare derives network declarations from static specs and the adapters
// backing them: bridged adapters are public networks and hostonly adapters
// private ones.
func Declare(specs []domain.NetworkSpec, adapters []domain.AdapterInfo) []DeclaredNetwork {
	ordinals := Ordinals(adapters)

	var declared []DeclaredNetwork
	for _, spec := range specs {
		if !spec.IsStatic() {
			continue
		}
		switch ordinals[spec.InterfaceIndex].Kind {
		case domain.AdapterBridged:
			declared = append(declared, DeclaredNetwork{Kind: PublicNetwork, IP: spec.IP})
		case domain.AdapterHostOnly:
			declared = append(declared, DeclaredNetwork{Kind: PrivateNetwork, IP: spec.IP})
		}
	}
	return declared
}
