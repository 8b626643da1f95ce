package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/containerd/log"
	"github.com/go-chi/chi/v5"

	"github.com/jbweber/homelab/guestcfg/internal/cloudconfig"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// MetaDataStore describes the datastore methods needed for NoCloud endpoints.
type MetaDataStore interface {
	GetMachineByHost(ctx context.Context, host string) (domain.Machine, error)
}

// MetaData serves NoCloud documents to the machine making the request.
type MetaData struct {
	store MetaDataStore
}

// NewMetaData creates a new MetaData instance with the given store.
func NewMetaData(store MetaDataStore) *MetaData {
	return &MetaData{store: store}
}

// requestor finds the machine whose address matches the client IP.
func (m *MetaData) requestor(w http.ResponseWriter, r *http.Request) (domain.Machine, bool) {
	ip, err := extractClientIP(r)
	if err != nil {
		log.G(r.Context()).WithError(err).Debug("failed to extract client IP")
		http.Error(w, "unable to determine client IP address", http.StatusBadRequest)
		return domain.Machine{}, false
	}

	machine, err := m.store.GetMachineByHost(r.Context(), ip)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			log.G(r.Context()).WithField("ip", ip).Info("machine not found for IP")
			http.Error(w, "machine not found", http.StatusNotFound)
			return domain.Machine{}, false
		}
		log.G(r.Context()).WithError(err).WithField("ip", ip).Error("failed to lookup machine by IP")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return domain.Machine{}, false
	}
	return machine, true
}

func instanceID(m domain.Machine) string {
	return fmt.Sprintf("iid-%08d", m.ID)
}

// NoCloudMetaDataHandler handles GET /meta-data.
func (m *MetaData) NoCloudMetaDataHandler(w http.ResponseWriter, r *http.Request) {
	machine, ok := m.requestor(w, r)
	if !ok {
		return
	}

	meta := fmt.Sprintf(`instance-id: %s
hostname: %s
local-hostname: %s
local-ipv4: %s
`,
		instanceID(machine),
		machine.Hostname,
		machine.Hostname,
		machine.Host(),
	)
	writeText(w, r, "text/yaml; charset=utf-8", []byte(meta))
}

// MetaDataKeyHandler handles GET /meta-data/{key}.
func (m *MetaData) MetaDataKeyHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	machine, ok := m.requestor(w, r)
	if !ok {
		return
	}

	var value string
	switch key {
	case "instance-id":
		value = instanceID(machine)
	case "hostname", "local-hostname":
		value = machine.Hostname
	case "local-ipv4":
		value = machine.Host()
	default:
		http.Error(w, "unknown metadata key", http.StatusNotFound)
		return
	}
	writeText(w, r, "text/plain; charset=utf-8", []byte(value+"\n"))
}

// UserDataHandler handles GET /user-data with the hostname document of the
// requesting machine.
func (m *MetaData) UserDataHandler(w http.ResponseWriter, r *http.Request) {
	machine, ok := m.requestor(w, r)
	if !ok {
		return
	}

	doc, err := cloudconfig.RenderHostname(machine.Hostname)
	if err != nil {
		log.G(r.Context()).WithError(err).WithField("machine", machine.Name).Error("failed to render user-data")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data, err := doc.Marshal()
	if err != nil {
		log.G(r.Context()).WithError(err).Error("failed to marshal user-data")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeText(w, r, CloudConfigContentType, data)
}
