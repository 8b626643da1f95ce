package cloudconfig

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// HostnameConfigDocument sets the guest hostname
type HostnameConfigDocument struct {
	Hostname string `yaml:"hostname"`
}

// Marshal implements Document.
func (d HostnameConfigDocument) Marshal() ([]byte, error) {
	return marshal(d)
}

// RenderHostname wraps name in a document. Only the empty name is rejected.
func RenderHostname(name string) (HostnameConfigDocument, error) {
	if name == "" {
		return HostnameConfigDocument{}, fmt.Errorf("hostname is required: %w", errdefs.ErrInvalidArgument)
	}
	return HostnameConfigDocument{Hostname: name}, nil
}
