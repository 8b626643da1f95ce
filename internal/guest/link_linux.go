//go:build linux

package guest

import (
	"context"
	"fmt"

	"github.com/containerd/log"
	"github.com/vishvananda/netlink"
)

// LinkOperator is the subset of netlink used to inspect local links
type LinkOperator interface {
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

type netlinkOperator struct{}

func (netlinkOperator) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

func (netlinkOperator) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (netlinkOperator) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

// LinkFacts implements Facts for the host it runs on, reading links over
// netlink. It is used when guestcfg runs inside the guest itself.
type LinkFacts struct {
	op LinkOperator
}

// NewLinkFacts creates Facts backed by the local netlink socket.
func NewLinkFacts() (*LinkFacts, error) {
	return NewLinkFactsWithOperator(netlinkOperator{}), nil
}

// NewLinkFactsWithOperator creates Facts backed by op.
func NewLinkFactsWithOperator(op LinkOperator) *LinkFacts {
	return &LinkFacts{op: op}
}

// InterfaceNames implements Facts. Links are returned in kernel index order.
func (f *LinkFacts) InterfaceNames(ctx context.Context) ([]string, error) {
	links, err := f.op.LinkList()
	if err != nil {
		return nil, queryError("list links", err)
	}

	var names []string
	for _, link := range links {
		name := link.Attrs().Name
		if IsInterfaceName(name) {
			names = append(names, name)
		}
	}
	log.G(ctx).WithField("interfaces", names).Debug("discovered local interfaces")
	return names, nil
}

// InterfaceIPv4 implements Facts.
func (f *LinkFacts) InterfaceIPv4(ctx context.Context, name string) (string, error) {
	link, err := f.op.LinkByName(name)
	if err != nil {
		return "", queryError(fmt.Sprintf("link %s", name), err)
	}
	addrs, err := f.op.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return "", queryError(fmt.Sprintf("addresses of %s", name), err)
	}
	for _, addr := range addrs {
		if addr.IPNet != nil && addr.IP.To4() != nil {
			return addr.IP.String(), nil
		}
	}
	return "", nil
}
