// Package matcher binds interface ordinals to the [Match] selectors used in
// generated network units.
package matcher

import (
	"context"
	"fmt"

	"github.com/containerd/log"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
)

// Strategy selects how guest interfaces are identified
type Strategy int

const (
	// ByName matches interfaces by the kernel names discovered in the guest.
	ByName Strategy = iota
	// ByMAC matches interfaces by the MAC addresses the provider reports.
	ByMAC
)

func (s Strategy) String() string {
	switch s {
	case ByName:
		return "name"
	case ByMAC:
		return "mac"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// SelectStrategy picks ByMAC when the provider can enumerate adapter MAC
// addresses and ByName otherwise.
func SelectStrategy(caps domain.Capabilities) Strategy {
	if caps.NICMACAddresses {
		return ByMAC
	}
	return ByName
}

// Facts are the inputs a strategy may draw on
type Facts struct {
	Guest    guest.Facts          // Queried by ByName
	Adapters []domain.AdapterInfo // Read by ByMAC
}

// Match computes the ordinal to selector mapping using strategy.
func Match(ctx context.Context, strategy Strategy, facts Facts) (domain.MatchRules, error) {
	var (
		rules domain.MatchRules
		err   error
	)
	switch strategy {
	case ByName:
		rules, err = matchByName(ctx, facts.Guest)
	case ByMAC:
		rules = matchByMAC(facts.Adapters)
	default:
		return nil, fmt.Errorf("unknown match strategy %s", strategy)
	}
	if err != nil {
		return nil, err
	}

	log.G(ctx).WithField("strategy", strategy).WithField("rules", rules).Debug("computed interface match rules")
	return rules, nil
}

func matchByName(ctx context.Context, facts guest.Facts) (domain.MatchRules, error) {
	if facts == nil {
		return nil, fmt.Errorf("match by name requires guest facts")
	}
	names, err := facts.InterfaceNames(ctx)
	if err != nil {
		return nil, err
	}

	rules := make(domain.MatchRules, len(names))
	for i, name := range names {
		rules[i] = domain.NameRule(name)
	}
	return rules, nil
}

// matchByMAC keys rules by adapter number minus one; providers number
// adapters from 1.
func matchByMAC(adapters []domain.AdapterInfo) domain.MatchRules {
	rules := make(domain.MatchRules, len(adapters))
	for _, adapter := range adapters {
		if adapter.MACAddress == "" {
			continue
		}
		rules[adapter.AdapterNumber-1] = domain.MACRule(adapter.MACAddress)
	}
	return rules
}
