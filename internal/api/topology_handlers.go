package api

import (
	"context"
	"net/http"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// TopologyStore holds the requested networks and provider adapters of
// machines
type TopologyStore interface {
	NetworkSpecs(ctx context.Context, machineID int64) ([]domain.NetworkSpec, error)
	ReplaceNetworkSpecs(ctx context.Context, machineID int64, specs []domain.NetworkSpec) error
	Adapters(ctx context.Context, machineID int64) ([]domain.AdapterInfo, error)
	ReplaceAdapters(ctx context.Context, machineID int64, adapters []domain.AdapterInfo) error
}

// Topology groups the network and adapter handlers
type Topology struct {
	store TopologyStore
}

func NewTopology(store TopologyStore) *Topology {
	return &Topology{store: store}
}

// GetNetworksHandler handles GET /api/v0/machines/{id}/networks.
func (t *Topology) GetNetworksHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	specs, err := t.store.NetworkSpecs(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to list networks")
		return
	}
	writeJSON(w, r, http.StatusOK, specs)
}

// PutNetworksHandler handles PUT /api/v0/machines/{id}/networks. The body
// replaces every stored network of the machine.
func (t *Topology) PutNetworksHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	var specs []domain.NetworkSpec
	if err := decodeJSON(r, &specs); err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	if err := t.store.ReplaceNetworkSpecs(r.Context(), id, specs); err != nil {
		writeError(w, r, err, "Failed to store networks")
		return
	}
	writeJSON(w, r, http.StatusOK, specs)
}

// GetAdaptersHandler handles GET /api/v0/machines/{id}/adapters.
func (t *Topology) GetAdaptersHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	adapters, err := t.store.Adapters(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to list adapters")
		return
	}
	writeJSON(w, r, http.StatusOK, adapters)
}

// PutAdaptersHandler handles PUT /api/v0/machines/{id}/adapters.
func (t *Topology) PutAdaptersHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	var adapters []domain.AdapterInfo
	if err := decodeJSON(r, &adapters); err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	if err := t.store.ReplaceAdapters(r.Context(), id, adapters); err != nil {
		writeError(w, r, err, "Failed to store adapters")
		return
	}
	writeJSON(w, r, http.StatusOK, adapters)
}
