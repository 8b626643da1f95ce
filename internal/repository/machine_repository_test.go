package repository

import (
	"context"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/homelab/guestcfg/internal/datastore"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/testutil"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()
	ds, err := datastore.New(testutil.NewTestDSN(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return NewRepositories(ds.DB)
}

func testMachine(name, address string) domain.Machine {
	return domain.Machine{Name: name, Hostname: name, Address: address}
}

func TestMachineRepository_Save(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	saved, err := repos.Machines.Save(ctx, domain.Machine{
		Name:       "core-01",
		Hostname:   "core-01.local",
		Address:    "172.17.8.101:2222",
		MACCapable: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "core", saved.SSHUser)

	found, err := repos.Machines.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, found)
}

func TestMachineRepository_SaveUpdates(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	saved, err := repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.101"))
	require.NoError(t, err)

	saved.Hostname = "renamed"
	saved.SSHUser = "vagrant"
	_, err = repos.Machines.Save(ctx, saved)
	require.NoError(t, err)

	found, err := repos.Machines.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", found.Hostname)
	assert.Equal(t, "vagrant", found.SSHUser)
}

func TestMachineRepository_SaveValidation(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		machine domain.Machine
	}{
		{"missing name", domain.Machine{Hostname: "h", Address: "10.0.0.1"}},
		{"missing hostname", domain.Machine{Name: "n", Address: "10.0.0.1"}},
		{"missing address", domain.Machine{Name: "n", Hostname: "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repos.Machines.Save(ctx, tt.machine)
			assert.ErrorIs(t, err, ErrInvalidEntity)
			assert.True(t, errdefs.IsInvalidArgument(err))
		})
	}
}

func TestMachineRepository_SaveDuplicateName(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	_, err := repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.101"))
	require.NoError(t, err)

	_, err = repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.102"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.True(t, errdefs.IsAlreadyExists(err))
}

func TestMachineRepository_UpdateMissing(t *testing.T) {
	repos := newTestRepositories(t)

	m := testMachine("ghost", "10.0.0.9")
	m.ID = 42
	_, err := repos.Machines.Save(context.Background(), m)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMachineRepository_FindByName(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	saved, err := repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.101"))
	require.NoError(t, err)

	found, err := repos.Machines.FindByName(ctx, "core-01")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = repos.Machines.FindByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestMachineRepository_FindByHost(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	plain, err := repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.101"))
	require.NoError(t, err)
	ported, err := repos.Machines.Save(ctx, testMachine("core-02", "172.17.8.102:2222"))
	require.NoError(t, err)

	found, err := repos.Machines.FindByHost(ctx, "172.17.8.101")
	require.NoError(t, err)
	assert.Equal(t, plain.ID, found.ID)

	found, err = repos.Machines.FindByHost(ctx, "172.17.8.102")
	require.NoError(t, err)
	assert.Equal(t, ported.ID, found.ID)

	_, err = repos.Machines.FindByHost(ctx, "172.17.8.10")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMachineRepository_FindAll(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	machines, err := repos.Machines.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, machines)

	for _, name := range []string{"core-01", "core-02"} {
		_, err := repos.Machines.Save(ctx, testMachine(name, "10.0.0.1"))
		require.NoError(t, err)
	}

	machines, err = repos.Machines.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, "core-01", machines[0].Name)
	assert.Equal(t, "core-02", machines[1].Name)
}

func TestMachineRepository_DeleteByID(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	saved, err := repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.101"))
	require.NoError(t, err)
	require.NoError(t, repos.NetworkSpecs.ReplaceForMachine(ctx, saved.ID, []domain.NetworkSpec{
		{InterfaceIndex: 1, Type: domain.NetworkDHCP},
	}))
	require.NoError(t, repos.Adapters.ReplaceForMachine(ctx, saved.ID, []domain.AdapterInfo{
		{AdapterNumber: 1, Kind: "nat"},
	}))
	_, err = repos.Deliveries.Record(ctx, domain.Delivery{MachineID: saved.ID, Path: "/var/tmp/hostname.yml", Unit: "u.service"})
	require.NoError(t, err)

	require.NoError(t, repos.Machines.DeleteByID(ctx, saved.ID))

	exists, err := repos.Machines.ExistsByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	specs, err := repos.NetworkSpecs.FindByMachineID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Empty(t, specs)

	err = repos.Machines.DeleteByID(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMachineRepository_ExistsByID(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	saved, err := repos.Machines.Save(ctx, testMachine("core-01", "172.17.8.101"))
	require.NoError(t, err)

	exists, err := repos.Machines.ExistsByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repos.Machines.ExistsByID(ctx, saved.ID+1)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewMachineRepository_Standalone(t *testing.T) {
	ds, err := datastore.New(testutil.NewTestDSN(t.Name()))
	require.NoError(t, err)
	defer ds.Close()

	repo := NewMachineRepository(ds.DB)
	_, err = repo.Save(context.Background(), testMachine("core-01", "172.17.8.101"))
	assert.NoError(t, err)
}
