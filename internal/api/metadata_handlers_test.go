package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/repository"
)

type mockMetaDataStore struct {
	machine domain.Machine
	err     error
	host    string
}

func (m *mockMetaDataStore) GetMachineByHost(ctx context.Context, host string) (domain.Machine, error) {
	m.host = host
	return m.machine, m.err
}

func testMetaDataStore() *mockMetaDataStore {
	return &mockMetaDataStore{
		machine: domain.Machine{ID: 42, Name: "test", Hostname: "testhost", Address: "1.2.3.4:2222"},
	}
}

func serveMetaData(t *testing.T, store MetaDataStore, path, remoteAddr string) (*http.Response, string) {
	t.Helper()
	r := chi.NewRouter()
	meta := NewMetaData(store)
	r.Get("/meta-data", meta.NoCloudMetaDataHandler)
	r.Get("/meta-data/{key}", meta.MetaDataKeyHandler)
	r.Get("/user-data", meta.UserDataHandler)

	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := w.Result()
	t.Cleanup(func() { resp.Body.Close() })
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp, string(body)
}

func TestNoCloudMetaDataHandler_Success(t *testing.T) {
	store := testMetaDataStore()
	resp, body := serveMetaData(t, store, "/meta-data", "1.2.3.4:12345")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/yaml; charset=utf-8" {
		t.Errorf("expected Content-Type 'text/yaml; charset=utf-8', got '%s'", ct)
	}
	if store.host != "1.2.3.4" {
		t.Errorf("expected lookup by 1.2.3.4, got %q", store.host)
	}

	expected := `instance-id: iid-00000042
hostname: testhost
local-hostname: testhost
local-ipv4: 1.2.3.4
`
	if body != expected {
		t.Errorf("unexpected response body:\nexpected:\n%s\ngot:\n%s", expected, body)
	}
}

func TestNoCloudMetaDataHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		remoteAddr string
		status     int
	}{
		{"invalid remote address", nil, "not-an-address", http.StatusBadRequest},
		{"machine not found", repository.ErrNotFound, "1.2.3.4:12345", http.StatusNotFound},
		{"store failure", errors.New("database is locked"), "1.2.3.4:12345", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testMetaDataStore()
			store.err = tt.err
			resp, _ := serveMetaData(t, store, "/meta-data", tt.remoteAddr)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestNoCloudMetaDataHandler_ForwardedFor(t *testing.T) {
	store := testMetaDataStore()
	r := chi.NewRouter()
	r.Get("/meta-data", NewMetaData(store).NoCloudMetaDataHandler)

	req := httptest.NewRequest("GET", "/meta-data", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.host != "1.2.3.4" {
		t.Errorf("expected lookup by forwarded address, got %q", store.host)
	}
}

func TestMetaDataKeyHandler(t *testing.T) {
	tests := []struct {
		key    string
		status int
		body   string
	}{
		{"instance-id", http.StatusOK, "iid-00000042\n"},
		{"hostname", http.StatusOK, "testhost\n"},
		{"local-hostname", http.StatusOK, "testhost\n"},
		{"local-ipv4", http.StatusOK, "1.2.3.4\n"},
		{"public-keys", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			resp, body := serveMetaData(t, testMetaDataStore(), "/meta-data/"+tt.key, "1.2.3.4:12345")
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status == http.StatusOK && body != tt.body {
				t.Errorf("expected %q, got %q", tt.body, body)
			}
		})
	}
}

func TestUserDataHandler(t *testing.T) {
	resp, body := serveMetaData(t, testMetaDataStore(), "/user-data", "1.2.3.4:12345")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != CloudConfigContentType {
		t.Errorf("expected Content-Type %q, got %q", CloudConfigContentType, ct)
	}
	if body != "#cloud-config\n\nhostname: testhost\n" {
		t.Errorf("unexpected user-data:\n%s", body)
	}
}

func TestUserDataHandler_EmptyHostname(t *testing.T) {
	store := testMetaDataStore()
	store.machine.Hostname = ""
	resp, _ := serveMetaData(t, store, "/user-data", "1.2.3.4:12345")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}
