package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/jbweber/homelab/guestcfg/internal/delivery"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
	"github.com/jbweber/homelab/guestcfg/internal/provision"
)

// Provisioning steps
const (
	StepHostname = "hostname"
	StepNetworks = "networks"
)

// GuestConn is an open connection to a guest
type GuestConn interface {
	guest.Communicator
	Close() error
}

// Dialer connects to a machine
type Dialer func(ctx context.Context, m domain.Machine) (GuestConn, error)

// ProvisionStore loads machines and keeps their delivery history
type ProvisionStore interface {
	MachineTopology(ctx context.Context, id int64) (MachineTopology, error)
	RecordDelivery(ctx context.Context, d domain.Delivery) (domain.Delivery, error)
	Deliveries(ctx context.Context, machineID int64) ([]domain.Delivery, error)
}

// Provisioning groups the handlers that act on live guests
type Provisioning struct {
	store ProvisionStore
	dial  Dialer
}

func NewProvisioning(store ProvisionStore, dial Dialer) *Provisioning {
	return &Provisioning{store: store, dial: dial}
}

// ProvisionRequest selects the steps to run; all steps run when empty
type ProvisionRequest struct {
	Steps []string `json:"steps,omitempty"`
}

type DeliveryResponse struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Unit      string `json:"unit"`
	Checksum  string `json:"checksum"`
	CreatedAt string `json:"created_at,omitempty"`
}

type ProvisionResponse struct {
	Deliveries []DeliveryResponse `json:"deliveries"`
}

func toDeliveryResponse(d domain.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:        d.ID,
		Path:      d.Path,
		Unit:      d.Unit,
		Checksum:  d.Checksum,
		CreatedAt: d.CreatedAt,
	}
}

func (req ProvisionRequest) steps() (hostname, networks bool, err error) {
	if len(req.Steps) == 0 {
		return true, true, nil
	}
	for _, step := range req.Steps {
		switch step {
		case StepHostname:
			hostname = true
		case StepNetworks:
			networks = true
		default:
			return false, false, fmt.Errorf("unknown step %q: %w", step, errdefs.ErrInvalidArgument)
		}
	}
	return hostname, networks, nil
}

// ProvisionHandler handles POST /api/v0/machines/{id}/provision. It connects
// to the machine, runs the hostname and network pipelines and returns what
// was delivered.
func (p *Provisioning) ProvisionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	var req ProvisionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, "Invalid request")
			return
		}
	}
	doHostname, doNetworks, err := req.steps()
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}

	ctx := r.Context()
	topo, err := p.store.MachineTopology(ctx, id)
	if err != nil {
		writeError(w, r, err, "Failed to load machine")
		return
	}
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("machine", topo.Machine.Name))

	conn, err := p.dial(ctx, topo.Machine)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err), "Failed to connect to machine")
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.G(ctx).WithError(err).Warn("failed to close guest connection")
		}
	}()

	response := ProvisionResponse{Deliveries: []DeliveryResponse{}}
	record := func(ctx context.Context, res delivery.Result) error {
		d, err := p.store.RecordDelivery(ctx, domain.Delivery{
			ID:        res.ID,
			MachineID: id,
			Path:      res.Path,
			Unit:      res.Unit,
			Checksum:  res.Checksum,
		})
		if err != nil {
			response.Deliveries = append(response.Deliveries, DeliveryResponse{ID: res.ID, Path: res.Path, Unit: res.Unit, Checksum: res.Checksum})
			return err
		}
		response.Deliveries = append(response.Deliveries, toDeliveryResponse(d))
		return nil
	}

	prov := provision.New(conn, topo.Machine.Capabilities(), provision.WithRecorder(record))
	if doHostname {
		if err := prov.ChangeHostName(ctx, topo.Machine.Hostname); err != nil {
			writeError(w, r, err, "Failed to change hostname")
			return
		}
	}
	if doNetworks {
		if err := prov.ConfigureNetworks(ctx, topo.Specs, topo.Adapters); err != nil {
			writeError(w, r, err, "Failed to configure networks")
			return
		}
	}

	writeJSON(w, r, http.StatusOK, response)
}

// DeliveriesHandler handles GET /api/v0/machines/{id}/deliveries.
func (p *Provisioning) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, r, err, "Invalid request")
		return
	}
	deliveries, err := p.store.Deliveries(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to list deliveries")
		return
	}

	response := make([]DeliveryResponse, len(deliveries))
	for i, d := range deliveries {
		response[i] = toDeliveryResponse(d)
	}
	writeJSON(w, r, http.StatusOK, response)
}
