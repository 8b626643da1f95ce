package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// MachinesStore defines the datastore interface for machine handlers
type MachinesStore interface {
	ListMachines(ctx context.Context) ([]domain.Machine, error)
	SaveMachine(ctx context.Context, m domain.Machine) (domain.Machine, error)
	GetMachine(ctx context.Context, id int64) (domain.Machine, error)
	GetMachineByName(ctx context.Context, name string) (domain.Machine, error)
	DeleteMachine(ctx context.Context, id int64) error
}

// Machines groups machine handlers for testability
type Machines struct {
	store MachinesStore
}

func NewMachines(store MachinesStore) *Machines {
	return &Machines{store: store}
}

// MachineRequest is the body of create and update requests
type MachineRequest struct {
	Name       string `json:"name"`
	Hostname   string `json:"hostname"`
	Address    string `json:"address"`
	SSHUser    string `json:"ssh_user,omitempty"`
	MACCapable bool   `json:"mac_capable"`
}

type MachineResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Hostname   string `json:"hostname"`
	Address    string `json:"address"`
	SSHUser    string `json:"ssh_user"`
	MACCapable bool   `json:"mac_capable"`
}

func toMachineResponse(m domain.Machine) MachineResponse {
	return MachineResponse{
		ID:         m.ID,
		Name:       m.Name,
		Hostname:   m.Hostname,
		Address:    m.Address,
		SSHUser:    m.SSHUser,
		MACCapable: m.MACCapable,
	}
}

func (req MachineRequest) validate() error {
	if req.Name == "" || req.Hostname == "" || req.Address == "" {
		return fmt.Errorf("name, hostname and address are required: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}

func (req MachineRequest) apply(m domain.Machine) domain.Machine {
	m.Name = req.Name
	m.Hostname = req.Hostname
	m.Address = req.Address
	m.SSHUser = req.SSHUser
	m.MACCapable = req.MACCapable
	return m
}

// ListMachinesHandler handles GET /api/v0/machines.
func (m *Machines) ListMachinesHandler(w http.ResponseWriter, r *http.Request) {
	machines, err := m.store.ListMachines(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to list machines")
		return
	}

	response := make([]MachineResponse, len(machines))
	for i, machine := range machines {
		response[i] = toMachineResponse(machine)
	}
	writeJSON(w, r, http.StatusOK, response)
}

// CreateMachineHandler handles POST /api/v0/machines.
//
// Returns 201 with the stored machine, 400 for missing fields and 409 when
// the name is taken.
func (m *Machines) CreateMachineHandler(w http.ResponseWriter, r *http.Request) {
	var req MachineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err, "Invalid machine")
		return
	}

	created, err := m.store.SaveMachine(r.Context(), req.apply(domain.Machine{}))
	if err != nil {
		writeError(w, r, err, "Failed to create machine")
		return
	}
	writeJSON(w, r, http.StatusCreated, toMachineResponse(created))
}

// GetMachineHandler handles GET /api/v0/machines/{id}.
func (m *Machines) GetMachineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	machine, err := m.store.GetMachine(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to get machine")
		return
	}
	writeJSON(w, r, http.StatusOK, toMachineResponse(machine))
}

// GetMachineByNameHandler handles GET /api/v0/machines/name/{name}.
func (m *Machines) GetMachineByNameHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, r, fmt.Errorf("machine name is required: %w", errdefs.ErrInvalidArgument), "Invalid request")
		return
	}
	machine, err := m.store.GetMachineByName(r.Context(), name)
	if err != nil {
		writeError(w, r, err, "Failed to get machine")
		return
	}
	writeJSON(w, r, http.StatusOK, toMachineResponse(machine))
}

// UpdateMachineHandler handles PATCH /api/v0/machines/{id}.
func (m *Machines) UpdateMachineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	var req MachineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err, "Invalid machine")
		return
	}

	machine, err := m.store.GetMachine(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to get machine")
		return
	}
	updated, err := m.store.SaveMachine(r.Context(), req.apply(machine))
	if err != nil {
		writeError(w, r, err, "Failed to update machine")
		return
	}
	writeJSON(w, r, http.StatusOK, toMachineResponse(updated))
}

// DeleteMachineHandler handles DELETE /api/v0/machines/{id}. Deleting a
// machine that does not exist succeeds.
func (m *Machines) DeleteMachineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	if err := m.store.DeleteMachine(r.Context(), id); err != nil && !errdefs.IsNotFound(err) {
		writeError(w, r, err, "Failed to delete machine")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
