package domain

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/containerd/errdefs"
)

// LoopbackAddress is exported when no other address can be determined.
const LoopbackAddress = "127.0.0.1"

// NetworkType selects how a guest interface obtains its address
type NetworkType string

const (
	NetworkStatic NetworkType = "static"
	NetworkDHCP   NetworkType = "dhcp"
)

// AdapterKind is the provider's attachment mode for a virtual adapter
type AdapterKind string

const (
	AdapterHostOnly AdapterKind = "hostonly"
	AdapterBridged  AdapterKind = "bridged"
	AdapterNone     AdapterKind = "none"
)

// NetworkSpec is one requested network attachment for a guest
type NetworkSpec struct {
	// InterfaceIndex is the 0-based ordinal among enumerated adapters.
	InterfaceIndex int         `json:"interface" yaml:"interface"`
	Type           NetworkType `json:"type" yaml:"type"`
	IP             string      `json:"ip,omitempty" yaml:"ip,omitempty"`
	Netmask        string      `json:"netmask,omitempty" yaml:"netmask,omitempty"`
}

// IsStatic reports whether a static address is requested.
func (n NetworkSpec) IsStatic() bool {
	return n.Type == NetworkStatic
}

// Validate checks the network before it is handed to the renderer. Static ones
// must carry a dotted-quad ip and netmask.
func (n NetworkSpec) Validate() error {
	if n.InterfaceIndex < 0 {
		return fmt.Errorf("network interface index %d is negative: %w", n.InterfaceIndex, errdefs.ErrInvalidArgument)
	}
	switch n.Type {
	case NetworkDHCP:
		return nil
	case NetworkStatic:
	default:
		return fmt.Errorf("network %d has unknown type %q: %w", n.InterfaceIndex, n.Type, errdefs.ErrInvalidArgument)
	}
	if !isDottedQuad(n.IP) {
		return fmt.Errorf("static network %d requires an IPv4 ip, got %q: %w", n.InterfaceIndex, n.IP, errdefs.ErrInvalidArgument)
	}
	if !isDottedQuad(n.Netmask) {
		return fmt.Errorf("static network %d requires an IPv4 netmask, got %q: %w", n.InterfaceIndex, n.Netmask, errdefs.ErrInvalidArgument)
	}
	return nil
}

func isDottedQuad(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// AdapterInfo is one virtual adapter as reported by the provider
type AdapterInfo struct {
	// AdapterNumber is 1-indexed, as reported by the provider.
	AdapterNumber int         `json:"adapter" yaml:"adapter"`
	Kind          AdapterKind `json:"kind" yaml:"kind"`
	MACAddress    string      `json:"mac,omitempty" yaml:"mac,omitempty"`
}

// MatchRule is the [Match] selector binding a unit to a guest interface
type MatchRule string

// NameRule matches an interface by its kernel name.
func NameRule(name string) MatchRule {
	return MatchRule("Name=" + name)
}

// MACRule matches an interface by its hardware address.
func MACRule(mac string) MatchRule {
	return MatchRule("MACAddress=" + mac)
}

// MatchRules maps 0-based interface ordinals to their selectors
type MatchRules map[int]MatchRule

// ResolvedAddresses are the addresses exported to /etc/environment
type ResolvedAddresses struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// Capabilities describes what the provider and guest box support
type Capabilities struct {
	NICMACAddresses bool `json:"nic_mac_addresses" yaml:"nicMacAddresses"` // Provider can enumerate adapter MACs
	DisableNetworks bool `json:"disable_networks" yaml:"disableNetworks"`   // Box manages networking itself
	DisableHostname bool `json:"disable_hostname" yaml:"disableHostname"`   // Box manages the hostname itself
}

// Machine represents a guest tracked in the inventory
type Machine struct {
	ID         int64  // Unique identifier
	Name       string // Machine name
	Hostname   string // Hostname written into the guest
	Address    string // host[:port] reachable over SSH
	SSHUser    string // Remote user, sudo capable
	MACCapable bool   // Provider reports adapter MAC addresses
}

// Capabilities returns the capability descriptor stored for the machine.
func (m Machine) Capabilities() Capabilities {
	return Capabilities{NICMACAddresses: m.MACCapable}
}

// Host returns the address without any port suffix.
func (m Machine) Host() string {
	if host, _, err := net.SplitHostPort(m.Address); err == nil {
		return host
	}
	return m.Address
}

// Delivery records a document uploaded to a guest
type Delivery struct {
	ID        string // UUID
	MachineID int64  // Foreign key to Machine
	Path      string // Destination path on the guest
	Unit      string // Unit started to consume the document
	Checksum  string // sha256 of the delivered document
	CreatedAt string // When the document was delivered
}
