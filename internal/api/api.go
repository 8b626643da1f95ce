package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/repository"
)

// API holds repository dependencies for clean data access
type API struct {
	store *repositoryStore
	dial  Dialer
}

// NewAPI creates a new API over repos. dial is used to reach guests for
// provisioning; provisioning requests fail when it is nil.
func NewAPI(repos *repository.Repositories, dial Dialer) *API {
	if dial == nil {
		dial = func(ctx context.Context, m domain.Machine) (GuestConn, error) {
			return nil, fmt.Errorf("no guest transport configured: %w", errdefs.ErrNotImplemented)
		}
	}
	return &API{
		store: &repositoryStore{repos: repos},
		dial:  dial,
	}
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequestLogger)

		// NoCloud endpoints, keyed by requestor IP
		meta := NewMetaData(a.store)
		r.Get("/meta-data", meta.NoCloudMetaDataHandler)
		r.Get("/meta-data/{key}", meta.MetaDataKeyHandler)
		r.Get("/user-data", meta.UserDataHandler)

		machines := NewMachines(a.store)
		topology := NewTopology(a.store)
		previews := NewPreviews(a.store)
		provisioning := NewProvisioning(a.store, a.dial)
		r.Route("/api/v0/machines", func(r chi.Router) {
			r.Get("/", machines.ListMachinesHandler)
			r.Post("/", machines.CreateMachineHandler)
			r.Get("/name/{name}", machines.GetMachineByNameHandler)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", machines.GetMachineHandler)
				r.Patch("/", machines.UpdateMachineHandler)
				r.Delete("/", machines.DeleteMachineHandler)

				r.Get("/networks", topology.GetNetworksHandler)
				r.Put("/networks", topology.PutNetworksHandler)
				r.Get("/adapters", topology.GetAdaptersHandler)
				r.Put("/adapters", topology.PutAdaptersHandler)

				r.Get("/cloud-config/networks", previews.NetworksHandler)
				r.Get("/cloud-config/hostname", previews.HostnameHandler)

				r.Post("/provision", provisioning.ProvisionHandler)
				r.Get("/deliveries", provisioning.DeliveriesHandler)
			})
		})
	})
}

// RequestLogger puts a logger tagged with the request ID and route into the
// request context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := log.G(r.Context()).WithField("method", r.Method).WithField("path", r.URL.Path)
		if id := middleware.GetReqID(r.Context()); id != "" {
			entry = entry.WithField("request_id", id)
		}
		next.ServeHTTP(w, r.WithContext(log.WithLogger(r.Context(), entry)))
	})
}

// repositoryStore adapts the repositories to the handler store interfaces
type repositoryStore struct {
	repos *repository.Repositories
}

func (s *repositoryStore) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	return s.repos.Machines.FindAll(ctx)
}

func (s *repositoryStore) SaveMachine(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	return s.repos.Machines.Save(ctx, m)
}

func (s *repositoryStore) GetMachine(ctx context.Context, id int64) (domain.Machine, error) {
	return s.repos.Machines.FindByID(ctx, id)
}

func (s *repositoryStore) GetMachineByName(ctx context.Context, name string) (domain.Machine, error) {
	return s.repos.Machines.FindByName(ctx, name)
}

func (s *repositoryStore) GetMachineByHost(ctx context.Context, host string) (domain.Machine, error) {
	return s.repos.Machines.FindByHost(ctx, host)
}

func (s *repositoryStore) DeleteMachine(ctx context.Context, id int64) error {
	return s.repos.Machines.DeleteByID(ctx, id)
}

// requireMachine turns reads for unknown machines into not found errors
// instead of empty lists.
func (s *repositoryStore) requireMachine(ctx context.Context, id int64) error {
	exists, err := s.repos.Machines.ExistsByID(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("machine with ID %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (s *repositoryStore) NetworkSpecs(ctx context.Context, machineID int64) ([]domain.NetworkSpec, error) {
	if err := s.requireMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.repos.NetworkSpecs.FindByMachineID(ctx, machineID)
}

func (s *repositoryStore) ReplaceNetworkSpecs(ctx context.Context, machineID int64, specs []domain.NetworkSpec) error {
	return s.repos.NetworkSpecs.ReplaceForMachine(ctx, machineID, specs)
}

func (s *repositoryStore) Adapters(ctx context.Context, machineID int64) ([]domain.AdapterInfo, error) {
	if err := s.requireMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.repos.Adapters.FindByMachineID(ctx, machineID)
}

func (s *repositoryStore) ReplaceAdapters(ctx context.Context, machineID int64, adapters []domain.AdapterInfo) error {
	return s.repos.Adapters.ReplaceForMachine(ctx, machineID, adapters)
}

func (s *repositoryStore) MachineTopology(ctx context.Context, id int64) (MachineTopology, error) {
	machine, err := s.repos.Machines.FindByID(ctx, id)
	if err != nil {
		return MachineTopology{}, err
	}
	specs, err := s.repos.NetworkSpecs.FindByMachineID(ctx, id)
	if err != nil {
		return MachineTopology{}, err
	}
	adapters, err := s.repos.Adapters.FindByMachineID(ctx, id)
	if err != nil {
		return MachineTopology{}, err
	}
	return MachineTopology{Machine: machine, Specs: specs, Adapters: adapters}, nil
}

func (s *repositoryStore) RecordDelivery(ctx context.Context, d domain.Delivery) (domain.Delivery, error) {
	return s.repos.Deliveries.Record(ctx, d)
}

func (s *repositoryStore) Deliveries(ctx context.Context, machineID int64) ([]domain.Delivery, error) {
	if err := s.requireMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.repos.Deliveries.FindByMachineID(ctx, machineID)
}
