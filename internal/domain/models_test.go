package domain

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestNetworkSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    NetworkSpec
		wantErr bool
	}{
		{"static ok", NetworkSpec{InterfaceIndex: 1, Type: NetworkStatic, IP: "10.0.0.5", Netmask: "255.255.255.0"}, false},
		{"dhcp without addresses", NetworkSpec{InterfaceIndex: 0, Type: NetworkDHCP}, false},
		{"static missing ip", NetworkSpec{Type: NetworkStatic, Netmask: "255.255.255.0"}, true},
		{"static missing netmask", NetworkSpec{Type: NetworkStatic, IP: "10.0.0.5"}, true},
		{"malformed netmask", NetworkSpec{Type: NetworkStatic, IP: "10.0.0.5", Netmask: "255.255.0"}, true},
		{"ipv6 rejected", NetworkSpec{Type: NetworkStatic, IP: "fd00::1", Netmask: "255.255.255.0"}, true},
		{"unknown type", NetworkSpec{Type: "bond"}, true},
		{"negative index", NetworkSpec{InterfaceIndex: -1, Type: NetworkDHCP}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errdefs.IsInvalidArgument(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMatchRuleConstructors(t *testing.T) {
	assert.Equal(t, MatchRule("Name=eth1"), NameRule("eth1"))
	assert.Equal(t, MatchRule("MACAddress=08:00:27:aa:bb:cc"), MACRule("08:00:27:aa:bb:cc"))
}

func TestMachine_Host(t *testing.T) {
	assert.Equal(t, "192.168.56.10", Machine{Address: "192.168.56.10:2222"}.Host())
	assert.Equal(t, "192.168.56.10", Machine{Address: "192.168.56.10"}.Host())
	assert.Equal(t, "core-01.local", Machine{Address: "core-01.local:22"}.Host())
}

func TestMachine_Capabilities(t *testing.T) {
	caps := Machine{MACCapable: true}.Capabilities()
	assert.True(t, caps.NICMACAddresses)
	assert.False(t, caps.DisableNetworks)
	assert.False(t, caps.DisableHostname)
}
