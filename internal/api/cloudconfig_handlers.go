package api

import (
	"context"
	"net/http"

	"github.com/jbweber/homelab/guestcfg/internal/cloudconfig"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/matcher"
	"github.com/jbweber/homelab/guestcfg/internal/resolver"
)

// CloudConfigContentType is served with every rendered document
const CloudConfigContentType = "text/cloud-config; charset=utf-8"

// MachineTopology is a machine with its stored networks and adapters
type MachineTopology struct {
	Machine  domain.Machine
	Specs    []domain.NetworkSpec
	Adapters []domain.AdapterInfo
}

// PreviewStore loads what a preview needs
type PreviewStore interface {
	GetMachine(ctx context.Context, id int64) (domain.Machine, error)
	MachineTopology(ctx context.Context, id int64) (MachineTopology, error)
}

// Previews renders documents from the inventory without contacting guests
type Previews struct {
	store PreviewStore
}

func NewPreviews(store PreviewStore) *Previews {
	return &Previews{store: store}
}

// RenderOfflineNetworks renders the network document for a machine that is
// not reachable. Interfaces are matched by the MAC addresses of its stored
// adapters and addresses come from its static networks; the machine's own
// address stands in for anything undeclared.
func RenderOfflineNetworks(ctx context.Context, topo MachineTopology) cloudconfig.NetworkConfigDocument {
	rules, _ := matcher.Match(ctx, matcher.ByMAC, matcher.Facts{Adapters: topo.Adapters})
	def := topo.Machine.Host()
	if def == "" {
		def = domain.LoopbackAddress
	}
	resolved := resolver.ResolveDeclared(ctx, resolver.Declare(topo.Specs, topo.Adapters), def)
	return cloudconfig.RenderNetwork(ctx, resolved, topo.Specs, rules)
}

// NetworksHandler handles GET /api/v0/machines/{id}/cloud-config/networks.
func (p *Previews) NetworksHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	topo, err := p.store.MachineTopology(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to load machine")
		return
	}

	data, err := RenderOfflineNetworks(r.Context(), topo).Marshal()
	if err != nil {
		writeError(w, r, err, "Failed to render network document")
		return
	}
	writeText(w, r, CloudConfigContentType, data)
}

// HostnameHandler handles GET /api/v0/machines/{id}/cloud-config/hostname.
func (p *Previews) HostnameHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	machine, err := p.store.GetMachine(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to load machine")
		return
	}
	doc, err := cloudconfig.RenderHostname(machine.Hostname)
	if err != nil {
		writeError(w, r, err, "Failed to render hostname document")
		return
	}
	data, err := doc.Marshal()
	if err != nil {
		writeError(w, r, err, "Failed to render hostname document")
		return
	}
	writeText(w, r, CloudConfigContentType, data)
}
