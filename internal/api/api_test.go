package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/homelab/guestcfg/internal/cloudconfig"
	"github.com/jbweber/homelab/guestcfg/internal/datastore"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/guest/guesttest"
	"github.com/jbweber/homelab/guestcfg/internal/repository"
	"github.com/jbweber/homelab/guestcfg/internal/testutil"
)

type fakeConn struct {
	*guesttest.Communicator
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func setupTestAPI(t *testing.T, dial Dialer) (*chi.Mux, *repository.Repositories) {
	t.Helper()
	ds, err := datastore.New(testutil.NewTestDSN(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	repos := repository.NewRepositories(ds.DB)
	r := chi.NewRouter()
	NewAPI(repos, dial).RegisterRoutes(r)
	return r, repos
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createMachine(t *testing.T, r http.Handler, req MachineRequest) MachineResponse {
	t.Helper()
	w := do(t, r, "POST", "/api/v0/machines", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp MachineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func coreMachine() MachineRequest {
	return MachineRequest{Name: "core-01", Hostname: "core-01", Address: "172.17.8.101"}
}

func TestListMachines_Empty(t *testing.T) {
	r, _ := setupTestAPI(t, nil)

	w := do(t, r, "GET", "/api/v0/machines", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response []MachineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Len(t, response, 0)
}

func TestCreateMachine(t *testing.T) {
	r, _ := setupTestAPI(t, nil)

	resp := createMachine(t, r, MachineRequest{Name: "core-01", Hostname: "core-01.local", Address: "172.17.8.101:2222", MACCapable: true})
	assert.NotZero(t, resp.ID)
	assert.Equal(t, "core-01.local", resp.Hostname)
	assert.Equal(t, "172.17.8.101:2222", resp.Address)
	assert.Equal(t, "core", resp.SSHUser)
	assert.True(t, resp.MACCapable)

	w := do(t, r, "GET", "/api/v0/machines", nil)
	var list []MachineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, []MachineResponse{resp}, list)
}

func TestCreateMachine_Invalid(t *testing.T) {
	r, _ := setupTestAPI(t, nil)

	req := httptest.NewRequest("POST", "/api/v0/machines", strings.NewReader("invalid json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, "POST", "/api/v0/machines", MachineRequest{Name: "no-address", Hostname: "h"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Contains(t, errResp.Error, "required")
}

func TestCreateMachine_DuplicateName(t *testing.T) {
	r, _ := setupTestAPI(t, nil)

	createMachine(t, r, coreMachine())
	w := do(t, r, "POST", "/api/v0/machines", coreMachine())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetMachineHandler(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())

	w := do(t, r, "GET", fmt.Sprintf("/api/v0/machines/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got MachineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, created, got)

	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v0/machines/99999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, "GET", "/api/v0/machines/invalid", nil).Code)
}

func TestGetMachineByName(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())

	w := do(t, r, "GET", "/api/v0/machines/name/core-01", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got MachineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)

	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v0/machines/name/no-such-machine", nil).Code)
}

func TestUpdateMachine(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())

	update := coreMachine()
	update.Hostname = "renamed"
	update.SSHUser = "vagrant"
	w := do(t, r, "PATCH", fmt.Sprintf("/api/v0/machines/%d", created.ID), update)
	assert.Equal(t, http.StatusOK, w.Code)

	var got MachineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "renamed", got.Hostname)
	assert.Equal(t, "vagrant", got.SSHUser)

	assert.Equal(t, http.StatusNotFound, do(t, r, "PATCH", "/api/v0/machines/99999", update).Code)
}

func TestDeleteMachine(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())

	path := fmt.Sprintf("/api/v0/machines/%d", created.ID)
	assert.Equal(t, http.StatusNoContent, do(t, r, "DELETE", path, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", path, nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, "DELETE", "/api/v0/machines/99999", nil).Code)
}

func storeTopology(t *testing.T, r http.Handler, id int64, specs []domain.NetworkSpec, adapters []domain.AdapterInfo) {
	t.Helper()
	w := do(t, r, "PUT", fmt.Sprintf("/api/v0/machines/%d/networks", id), specs)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, r, "PUT", fmt.Sprintf("/api/v0/machines/%d/adapters", id), adapters)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

var (
	testSpecs = []domain.NetworkSpec{
		{InterfaceIndex: 1, Type: domain.NetworkStatic, IP: "172.17.8.101", Netmask: "255.255.255.0"},
		{InterfaceIndex: 2, Type: domain.NetworkDHCP},
	}
	testAdapters = []domain.AdapterInfo{
		{AdapterNumber: 1, Kind: "nat", MACAddress: "080027aa0001"},
		{AdapterNumber: 2, Kind: domain.AdapterHostOnly, MACAddress: "080027aa0002"},
		{AdapterNumber: 3, Kind: domain.AdapterBridged, MACAddress: "080027aa0003"},
	}
)

func TestTopologyHandlers(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())
	storeTopology(t, r, created.ID, testSpecs, testAdapters)

	w := do(t, r, "GET", fmt.Sprintf("/api/v0/machines/%d/networks", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var specs []domain.NetworkSpec
	require.NoError(t, json.NewDecoder(w.Body).Decode(&specs))
	assert.Equal(t, testSpecs, specs)

	w = do(t, r, "GET", fmt.Sprintf("/api/v0/machines/%d/adapters", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var adapters []domain.AdapterInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&adapters))
	assert.Equal(t, testAdapters, adapters)
}

func TestTopologyHandlers_Errors(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())

	bad := []domain.NetworkSpec{{InterfaceIndex: 1, Type: domain.NetworkStatic, IP: "not-an-ip", Netmask: "255.255.255.0"}}
	w := do(t, r, "PUT", fmt.Sprintf("/api/v0/machines/%d/networks", created.ID), bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNotFound, do(t, r, "PUT", "/api/v0/machines/99999/networks", testSpecs).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v0/machines/99999/networks", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v0/machines/99999/adapters", nil).Code)
}

func TestCloudConfigNetworksPreview(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())
	storeTopology(t, r, created.ID, testSpecs, testAdapters)

	w := do(t, r, "GET", fmt.Sprintf("/api/v0/machines/%d/cloud-config/networks", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CloudConfigContentType, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), cloudconfig.Header))

	var doc cloudconfig.NetworkConfigDocument
	require.NoError(t, cloudconfig.Parse(w.Body.Bytes(), &doc))
	require.Len(t, doc.WriteFiles, 1)
	assert.Equal(t, "COREOS_PUBLIC_IPV4=172.17.8.101\nCOREOS_PRIVATE_IPV4=172.17.8.101\n", doc.WriteFiles[0].Content)

	require.Len(t, doc.CoreOS.Units, 1)
	unit := doc.CoreOS.Units[0]
	assert.Equal(t, "50-vagrant1.network", unit.Name)
	assert.Equal(t, "[Match]\nMACAddress=080027aa0002\n\n[Network]\nAddress=172.17.8.101/24\n", unit.Content)
}

func TestCloudConfigHostnamePreview(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, coreMachine())

	w := do(t, r, "GET", fmt.Sprintf("/api/v0/machines/%d/cloud-config/hostname", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "#cloud-config\n\nhostname: core-01\n", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v0/machines/99999/cloud-config/hostname", nil).Code)
}

func TestProvision(t *testing.T) {
	comm := guesttest.New(
		[]string{"eth0", "eth1", "eth2"},
		map[string]string{"eth0": "10.0.2.15", "eth1": "172.17.8.101", "eth2": "192.168.1.50"},
	)
	conn := &fakeConn{Communicator: comm}
	var dialed domain.Machine
	dial := func(ctx context.Context, m domain.Machine) (GuestConn, error) {
		dialed = m
		return conn, nil
	}

	r, _ := setupTestAPI(t, dial)
	created := createMachine(t, r, coreMachine())
	storeTopology(t, r, created.ID, testSpecs, testAdapters)

	w := do(t, r, "POST", fmt.Sprintf("/api/v0/machines/%d/provision", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ProvisionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Deliveries, 2)
	assert.Equal(t, "/var/tmp/hostname.yml", resp.Deliveries[0].Path)
	assert.Equal(t, "/var/tmp/networks.yml", resp.Deliveries[1].Path)

	assert.Equal(t, "core-01", dialed.Name)
	assert.True(t, conn.closed)
	require.Len(t, comm.Uploads, 2)
	assert.Len(t, comm.CommandsContaining("systemctl start"), 2)

	var doc cloudconfig.NetworkConfigDocument
	require.NoError(t, cloudconfig.Parse(comm.Uploads[1].Content, &doc))
	assert.Contains(t, doc.WriteFiles[0].Content, "COREOS_PUBLIC_IPV4=192.168.1.50")
	unit, ok := doc.Unit("50-vagrant1.network")
	require.True(t, ok)
	assert.Contains(t, unit.Content, "Name=eth1")

	w = do(t, r, "GET", fmt.Sprintf("/api/v0/machines/%d/deliveries", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deliveries []DeliveryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&deliveries))
	assert.Len(t, deliveries, 2)
}

func TestProvision_SingleStep(t *testing.T) {
	comm := guesttest.New([]string{"eth0"}, map[string]string{"eth0": "10.0.2.15"})
	dial := func(ctx context.Context, m domain.Machine) (GuestConn, error) {
		return &fakeConn{Communicator: comm}, nil
	}
	r, _ := setupTestAPI(t, dial)
	created := createMachine(t, r, coreMachine())

	path := fmt.Sprintf("/api/v0/machines/%d/provision", created.ID)
	w := do(t, r, "POST", path, ProvisionRequest{Steps: []string{StepHostname}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, comm.Uploads, 1)
	assert.Equal(t, "/var/tmp/hostname.yml", comm.Uploads[0].RemotePath)

	w = do(t, r, "POST", path, ProvisionRequest{Steps: []string{"reboot"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProvision_Failures(t *testing.T) {
	failing := guesttest.New([]string{"eth0"}, nil)
	failing.Failures["ifconfig"] = errors.New("connection lost")
	dialErr := errors.New("connection refused")

	tests := []struct {
		name   string
		dial   Dialer
		status int
	}{
		{"no transport", nil, http.StatusBadGateway},
		{"dial failure", func(ctx context.Context, m domain.Machine) (GuestConn, error) { return nil, dialErr }, http.StatusBadGateway},
		{"remote query failure", func(ctx context.Context, m domain.Machine) (GuestConn, error) {
			return &fakeConn{Communicator: failing}, nil
		}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setupTestAPI(t, tt.dial)
			created := createMachine(t, r, coreMachine())
			w := do(t, r, "POST", fmt.Sprintf("/api/v0/machines/%d/provision", created.ID), ProvisionRequest{Steps: []string{StepNetworks}})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	r, _ := setupTestAPI(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, r, "POST", "/api/v0/machines/99999/provision", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v0/machines/99999/deliveries", nil).Code)
	assert.Empty(t, failing.Uploads)
}

func TestMetaDataRoutes(t *testing.T) {
	r, _ := setupTestAPI(t, nil)
	created := createMachine(t, r, MachineRequest{Name: "core-02", Hostname: "core-02", Address: "172.17.8.102:22"})

	req := httptest.NewRequest("GET", "/meta-data/instance-id", nil)
	req.RemoteAddr = "172.17.8.102:40000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fmt.Sprintf("iid-%08d\n", created.ID), w.Body.String())

	req = httptest.NewRequest("GET", "/user-data", nil)
	req.RemoteAddr = "172.17.8.199:40000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
