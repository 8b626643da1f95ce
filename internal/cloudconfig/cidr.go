package cloudconfig

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"

	"github.com/containerd/errdefs"
)

// ErrMalformedNetmask is returned for netmasks that are not dotted-quad IPv4.
var ErrMalformedNetmask = fmt.Errorf("malformed netmask: %w", errdefs.ErrInvalidArgument)

// CIDRPrefix returns the prefix length of a dotted-quad netmask, counted as
// the number of set bits. Non-contiguous masks are not rejected.
func CIDRPrefix(netmask string) (int, error) {
	addr, err := netip.ParseAddr(netmask)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNetmask, netmask)
	}
	b := addr.As4()
	return bits.OnesCount32(binary.BigEndian.Uint32(b[:])), nil
}
