// Package delivery hands rendered documents to a guest and starts the
// cloudinit unit that consumes them.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/coreos/go-systemd/v22/unit"
	"github.com/google/uuid"

	"github.com/jbweber/homelab/guestcfg/internal/cloudconfig"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
)

// Fixed destinations on the guest
const (
	NetworksPath = "/var/tmp/networks.yml"
	HostnamePath = "/var/tmp/hostname.yml"
)

// Result describes a completed delivery
type Result struct {
	ID       string
	Path     string
	Unit     string
	Checksum string
}

// UnitName returns the cloudinit unit instance consuming the file at path,
// e.g. system-cloudinit@var-tmp-networks.yml.service.
func UnitName(path string) string {
	return fmt.Sprintf("system-cloudinit@%s.service", unit.UnitNamePathEscape(path))
}

// Deliver serializes doc, uploads it to remotePath and starts the unit for
// that path.
func Deliver(ctx context.Context, comm guest.Communicator, doc cloudconfig.Document, remotePath string) (Result, error) {
	data, err := doc.Marshal()
	if err != nil {
		return Result{}, err
	}
	return DeliverBytes(ctx, comm, data, remotePath)
}

// DeliverBytes is Deliver for an already serialized document.
func DeliverBytes(ctx context.Context, comm guest.Communicator, data []byte, remotePath string) (Result, error) {
	id := uuid.NewString()
	sum := sha256.Sum256(data)
	res := Result{
		ID:       id,
		Path:     remotePath,
		Unit:     UnitName(remotePath),
		Checksum: hex.EncodeToString(sum[:]),
	}
	logger := log.G(ctx).WithField("path", remotePath).WithField("unit", res.Unit)

	temp, err := os.CreateTemp("", "guestcfg-"+id+"-*.yml")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(temp.Name()); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("failed to remove temp file")
		}
	}()

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return Result{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := comm.Upload(ctx, temp.Name(), remotePath); err != nil {
		return Result{}, fmt.Errorf("failed to upload %s: %w", remotePath, err)
	}

	if _, err := comm.RunPrivileged(ctx, "systemctl start "+res.Unit); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", res.Unit, err)
	}

	logger.WithField("checksum", res.Checksum).Info("delivered cloud-config")
	return res, nil
}
