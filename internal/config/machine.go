package config

import (
	"fmt"
	"os"

	"github.com/containerd/errdefs"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// MachineDefinition is a machine as written in a definition file:
//
//	name: core-01
//	hostname: core-01
//	address: 172.17.8.101
//	capabilities:
//	  nicMacAddresses: true
//	networks:
//	  - interface: 1
//	    type: static
//	    ip: 172.17.8.101
//	    netmask: 255.255.255.0
//	adapters:
//	  - adapter: 2
//	    kind: hostonly
//	    mac: 080027aa0002
type MachineDefinition struct {
	Name         string               `yaml:"name"`
	Hostname     string               `yaml:"hostname"`
	Address      string               `yaml:"address"`
	SSHUser      string               `yaml:"sshUser"`
	Capabilities domain.Capabilities  `yaml:"capabilities"`
	Networks     []domain.NetworkSpec `yaml:"networks"`
	Adapters     []domain.AdapterInfo `yaml:"adapters"`
}

// LoadMachineDefinition reads and validates a definition file.
func LoadMachineDefinition(path string) (*MachineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine definition: %w", err)
	}
	return ParseMachineDefinition(data)
}

// ParseMachineDefinition decodes and validates a definition.
func ParseMachineDefinition(data []byte) (*MachineDefinition, error) {
	var def MachineDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse machine definition: %w: %w", errdefs.ErrInvalidArgument, err)
	}
	if def.Hostname == "" {
		def.Hostname = def.Name
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition is complete enough to act on
func (d *MachineDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("machine name is required: %w", errdefs.ErrInvalidArgument)
	}
	for _, spec := range d.Networks {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("machine %s: %w", d.Name, err)
		}
	}
	for _, a := range d.Adapters {
		if a.AdapterNumber < 1 {
			return fmt.Errorf("machine %s: adapter number %d must be at least 1: %w", d.Name, a.AdapterNumber, errdefs.ErrInvalidArgument)
		}
	}
	return nil
}

// Machine returns the inventory record for the definition
func (d *MachineDefinition) Machine() domain.Machine {
	return domain.Machine{
		Name:       d.Name,
		Hostname:   d.Hostname,
		Address:    d.Address,
		SSHUser:    d.SSHUser,
		MACCapable: d.Capabilities.NICMACAddresses,
	}
}
