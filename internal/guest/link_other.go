//go:build !linux

package guest

import (
	"context"
	"fmt"
	"runtime"

	"github.com/containerd/errdefs"
)

// LinkFacts is only available on linux
type LinkFacts struct{}

// NewLinkFacts returns an error on platforms without netlink.
func NewLinkFacts() (*LinkFacts, error) {
	return nil, fmt.Errorf("local link discovery on %s: %w", runtime.GOOS, errdefs.ErrNotImplemented)
}

// InterfaceNames implements Facts.
func (f *LinkFacts) InterfaceNames(ctx context.Context) ([]string, error) {
	return nil, errdefs.ErrNotImplemented
}

// InterfaceIPv4 implements Facts.
func (f *LinkFacts) InterfaceIPv4(ctx context.Context, name string) (string, error) {
	return "", errdefs.ErrNotImplemented
}
