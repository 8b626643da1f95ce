// Package guest talks to the machine being configured. It exposes the narrow
// remote execution capability the provisioning pipelines need and the
// interface facts derived from it.
package guest

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// ErrRemoteQuery is returned when the guest command channel fails or returns
// output that cannot be used.
var ErrRemoteQuery = fmt.Errorf("remote query failed: %w", errdefs.ErrUnavailable)

// Communicator executes commands on, and copies files to, a guest.
type Communicator interface {
	// RunPrivileged runs cmd as root and returns its stdout.
	RunPrivileged(ctx context.Context, cmd string) (string, error)
	// RunPrivilegedFunc runs cmd as root and hands its stdout to fn.
	RunPrivilegedFunc(ctx context.Context, cmd string, fn func(stdout string)) error
	// Upload copies localPath to remotePath on the guest.
	Upload(ctx context.Context, localPath, remotePath string) error
}

// Facts answers the questions the matcher and resolver ask about a guest.
type Facts interface {
	// InterfaceNames lists interfaces named en* or eth* in discovery order.
	InterfaceNames(ctx context.Context) ([]string, error)
	// InterfaceIPv4 returns the live IPv4 address of name, or "" if it has none.
	InterfaceIPv4(ctx context.Context, name string) (string, error)
}

const listInterfacesCmd = `ifconfig -a | grep '^en\|^eth' | cut -f1 -d:`

// interfacePrefixes are the kernel naming conventions of guest NICs.
var interfacePrefixes = []string{"en", "eth"}

// IsInterfaceName reports whether name follows the NIC naming convention.
func IsInterfaceName(name string) bool {
	for _, prefix := range interfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// RemoteFacts implements Facts by running shell queries through a Communicator
type RemoteFacts struct {
	comm Communicator
}

// NewRemoteFacts creates Facts backed by comm.
func NewRemoteFacts(comm Communicator) *RemoteFacts {
	return &RemoteFacts{comm: comm}
}

// InterfaceNames implements Facts.
func (f *RemoteFacts) InterfaceNames(ctx context.Context) ([]string, error) {
	var names []string
	err := f.comm.RunPrivilegedFunc(ctx, listInterfacesCmd, func(stdout string) {
		names = append(names, ParseInterfaceNames(stdout)...)
	})
	if err != nil {
		return nil, queryError("list interfaces", err)
	}
	log.G(ctx).WithField("interfaces", names).Debug("discovered guest interfaces")
	return names, nil
}

// InterfaceIPv4 implements Facts.
func (f *RemoteFacts) InterfaceIPv4(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty interface name", ErrRemoteQuery)
	}
	out, err := f.comm.RunPrivileged(ctx, interfaceIPv4Cmd(name))
	if err != nil {
		return "", queryError("address of "+name, err)
	}
	return strings.TrimRight(out, " \t\r\n"), nil
}

func interfaceIPv4Cmd(name string) string {
	return fmt.Sprintf(`ip -4 -o addr show dev %s | awk '{split($4,a,"/"); print a[1]; exit}'`, ShellQuote(name))
}

// ParseInterfaceNames splits the output of the interface listing into names,
// dropping blank lines and anything not following the NIC naming convention.
func ParseInterfaceNames(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || !IsInterfaceName(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func queryError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteQuery, what, err)
}
