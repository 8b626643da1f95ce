// Package provision runs the network and hostname pipelines against a guest:
// collect facts, compute the mapping, render the document and deliver it.
package provision

import (
	"context"
	"fmt"

	"github.com/containerd/log"

	"github.com/jbweber/homelab/guestcfg/internal/cloudconfig"
	"github.com/jbweber/homelab/guestcfg/internal/delivery"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
	"github.com/jbweber/homelab/guestcfg/internal/matcher"
	"github.com/jbweber/homelab/guestcfg/internal/resolver"
)

// Recorder is called after each successful delivery
type Recorder func(ctx context.Context, res delivery.Result) error

// Provisioner configures a single guest
type Provisioner struct {
	comm     guest.Communicator
	facts    guest.Facts
	caps     domain.Capabilities
	recorder Recorder
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithFacts overrides where interface facts are read from. By default they
// are queried through the communicator.
func WithFacts(facts guest.Facts) Option {
	return func(p *Provisioner) {
		p.facts = facts
	}
}

// WithRecorder sets a hook invoked with every delivery result.
func WithRecorder(r Recorder) Option {
	return func(p *Provisioner) {
		p.recorder = r
	}
}

// New returns a Provisioner for the guest behind comm.
func New(comm guest.Communicator, caps domain.Capabilities, opts ...Option) *Provisioner {
	p := &Provisioner{
		comm: comm,
		caps: caps,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.facts == nil && comm != nil {
		p.facts = guest.NewRemoteFacts(comm)
	}
	return p
}

// RenderNetworks runs the network pipeline up to rendering without
// delivering anything.
func (p *Provisioner) RenderNetworks(ctx context.Context, specs []domain.NetworkSpec, adapters []domain.AdapterInfo) (cloudconfig.NetworkConfigDocument, error) {
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return cloudconfig.NetworkConfigDocument{}, err
		}
	}

	strategy := matcher.SelectStrategy(p.caps)
	rules, err := matcher.Match(ctx, strategy, matcher.Facts{Guest: p.facts, Adapters: adapters})
	if err != nil {
		return cloudconfig.NetworkConfigDocument{}, fmt.Errorf("failed to match interfaces: %w", err)
	}

	resolved, err := resolver.Resolve(ctx, specs, adapters, p.facts)
	if err != nil {
		return cloudconfig.NetworkConfigDocument{}, fmt.Errorf("failed to resolve addresses: %w", err)
	}

	return cloudconfig.RenderNetwork(ctx, resolved, specs, rules), nil
}

// ConfigureNetworks renders the network document for specs and delivers it
// to the guest. Nothing is delivered if any step fails.
func (p *Provisioner) ConfigureNetworks(ctx context.Context, specs []domain.NetworkSpec, adapters []domain.AdapterInfo) error {
	if p.caps.DisableNetworks {
		log.G(ctx).Debug("network configuration disabled for this guest")
		return nil
	}

	doc, err := p.RenderNetworks(ctx, specs, adapters)
	if err != nil {
		return err
	}
	return p.deliver(ctx, doc, delivery.NetworksPath)
}

// ChangeHostName delivers a document setting the guest hostname to name.
func (p *Provisioner) ChangeHostName(ctx context.Context, name string) error {
	if p.caps.DisableHostname {
		log.G(ctx).Debug("hostname changes disabled for this guest")
		return nil
	}

	doc, err := cloudconfig.RenderHostname(name)
	if err != nil {
		return err
	}
	return p.deliver(ctx, doc, delivery.HostnamePath)
}

func (p *Provisioner) deliver(ctx context.Context, doc cloudconfig.Document, path string) error {
	res, err := delivery.Deliver(ctx, p.comm, doc, path)
	if err != nil {
		return err
	}
	if p.recorder == nil {
		return nil
	}
	if err := p.recorder(ctx, res); err != nil {
		log.G(ctx).WithError(err).WithField("path", path).Warn("failed to record delivery")
	}
	return nil
}
