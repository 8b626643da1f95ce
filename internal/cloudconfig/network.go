package cloudconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/log"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// EnvironmentPath is where the resolved addresses are exported in the guest.
const EnvironmentPath = "/etc/environment"

// Environment variable names read by CoreOS services
const (
	PublicIPv4Var  = "COREOS_PUBLIC_IPV4"
	PrivateIPv4Var = "COREOS_PRIVATE_IPV4"
)

// WriteFile is a write_files entry
type WriteFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// Unit is a systemd unit written by cloudinit
type Unit struct {
	Name    string `yaml:"name"`
	Runtime bool   `yaml:"runtime"`
	Content string `yaml:"content"`
}

// CoreOS holds the coreos section of a cloud-config document
type CoreOS struct {
	Units []Unit `yaml:"units"`
}

// NetworkConfigDocument exports the resolved addresses and binds static
// addresses to guest interfaces through networkd units.
type NetworkConfigDocument struct {
	WriteFiles []WriteFile `yaml:"write_files"`
	CoreOS     CoreOS      `yaml:"coreos"`
}

// Marshal implements Document.
func (d NetworkConfigDocument) Marshal() ([]byte, error) {
	return marshal(d)
}

// Unit returns the unit with the given name.
func (d NetworkConfigDocument) Unit(name string) (Unit, bool) {
	for _, u := range d.CoreOS.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// UnitName is the networkd unit generated for an interface ordinal.
func UnitName(interfaceIndex int) string {
	return fmt.Sprintf("50-vagrant%d.network", interfaceIndex)
}

// RenderNetwork builds the network document. Specs that are not static are
// left to DHCP; a static spec without a match rule is skipped with a warning.
// The environment file is always present.
func RenderNetwork(ctx context.Context, resolved domain.ResolvedAddresses, specs []domain.NetworkSpec, rules domain.MatchRules) NetworkConfigDocument {
	logger := log.G(ctx)

	doc := NetworkConfigDocument{
		WriteFiles: []WriteFile{environmentFile(resolved)},
		CoreOS:     CoreOS{Units: []Unit{}},
	}

	for _, spec := range specs {
		if !spec.IsStatic() {
			continue
		}

		match, ok := rules[spec.InterfaceIndex]
		if !ok {
			logger.WithField("network", fmt.Sprintf("%+v", spec)).Warn("could not find match rule for network")
			continue
		}

		prefix, err := CIDRPrefix(spec.Netmask)
		if err != nil {
			logger.WithError(err).WithField("interface", spec.InterfaceIndex).Warn("skipping network with malformed netmask")
			continue
		}

		doc.CoreOS.Units = append(doc.CoreOS.Units, Unit{
			Name:    UnitName(spec.InterfaceIndex),
			Runtime: false,
			Content: networkUnit(match, fmt.Sprintf("%s/%d", spec.IP, prefix)),
		})
	}

	return doc
}

func environmentFile(resolved domain.ResolvedAddresses) WriteFile {
	return WriteFile{
		Path: EnvironmentPath,
		Content: fmt.Sprintf("%s=%s\n%s=%s\n",
			PublicIPv4Var, resolved.Public,
			PrivateIPv4Var, resolved.Private),
	}
}

func networkUnit(match domain.MatchRule, address string) string {
	var b strings.Builder
	b.WriteString("[Match]\n")
	b.WriteString(string(match))
	b.WriteString("\n\n[Network]\n")
	b.WriteString("Address=")
	b.WriteString(address)
	b.WriteString("\n")
	return b.String()
}
