//go:build linux

package guest

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

type fakeLinkOperator struct {
	links []netlink.Link
	addrs map[string][]netlink.Addr
	err   error
}

func (f *fakeLinkOperator) LinkList() ([]netlink.Link, error) {
	return f.links, f.err
}

func (f *fakeLinkOperator) LinkByName(name string) (netlink.Link, error) {
	for _, l := range f.links {
		if l.Attrs().Name == name {
			return l, nil
		}
	}
	return nil, errors.New("link not found")
}

func (f *fakeLinkOperator) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return f.addrs[link.Attrs().Name], nil
}

func device(name string) netlink.Link {
	return &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name}}
}

func TestLinkFacts_InterfaceNames(t *testing.T) {
	op := &fakeLinkOperator{links: []netlink.Link{device("lo"), device("eth0"), device("docker0"), device("enp0s8")}}
	facts := NewLinkFactsWithOperator(op)

	names, err := facts.InterfaceNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"eth0", "enp0s8"}, names)
}

func TestLinkFacts_InterfaceIPv4(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("192.168.56.0/24")
	require.NoError(t, err)
	ipnet.IP = net.ParseIP("192.168.56.10")

	op := &fakeLinkOperator{
		links: []netlink.Link{device("eth1")},
		addrs: map[string][]netlink.Addr{"eth1": {{IPNet: ipnet}}},
	}
	facts := NewLinkFactsWithOperator(op)

	addr, err := facts.InterfaceIPv4(context.Background(), "eth1")
	require.NoError(t, err)
	assert.Equal(t, "192.168.56.10", addr)

	_, err = facts.InterfaceIPv4(context.Background(), "eth7")
	assert.ErrorIs(t, err, ErrRemoteQuery)
}
