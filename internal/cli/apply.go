package cli

import (
	"context"
	"fmt"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/guestcfg/internal/config"
	"github.com/jbweber/homelab/guestcfg/internal/delivery"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/provision"
	"github.com/jbweber/homelab/guestcfg/internal/repository"
)

type applyOptions struct {
	file     string
	hostname bool
	networks bool
	record   bool
}

func newApplyCmd(opts *options) *cobra.Command {
	var a applyOptions
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Configure a guest from a machine definition",
		Long: `Connect to the guest named in a machine definition, then deliver its
hostname and network documents.

Examples:
  # Run both steps
  guestcfg apply -f core-01.yml

  # Only set the hostname, recording the delivery in the inventory
  guestcfg apply -f core-01.yml --networks=false --record`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, a)
		},
	}
	cmd.Flags().StringVarP(&a.file, "file", "f", "", "Machine definition file")
	cmd.Flags().BoolVar(&a.hostname, "hostname", true, "Deliver the hostname document")
	cmd.Flags().BoolVar(&a.networks, "networks", true, "Deliver the network document")
	cmd.Flags().BoolVar(&a.record, "record", false, "Record deliveries against the machine in the inventory")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runApply(ctx context.Context, opts *options, a applyOptions) error {
	def, err := config.LoadMachineDefinition(a.file)
	if err != nil {
		return err
	}
	if def.Address == "" {
		return fmt.Errorf("machine %s has no address to connect to", def.Name)
	}
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("machine", def.Name))

	var provOpts []provision.Option
	if a.record {
		recorder, closeDB, err := opts.inventoryRecorder(ctx, def.Name)
		if err != nil {
			return err
		}
		defer closeDB()
		provOpts = append(provOpts, provision.WithRecorder(recorder))
	}

	conn, err := opts.dial(ctx, def.Machine())
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.G(ctx).WithError(err).Warn("failed to close guest connection")
		}
	}()

	p := provision.New(conn, def.Capabilities, provOpts...)
	if a.hostname {
		if err := p.ChangeHostName(ctx, def.Hostname); err != nil {
			return err
		}
	}
	if a.networks {
		if err := p.ConfigureNetworks(ctx, def.Networks, def.Adapters); err != nil {
			return err
		}
	}
	return nil
}

// inventoryRecorder returns a recorder storing deliveries against the
// inventory machine called name.
func (o *options) inventoryRecorder(ctx context.Context, name string) (provision.Recorder, func(), error) {
	db, err := o.cfg.InitializeDatabase()
	if err != nil {
		return nil, nil, err
	}
	repos := repository.NewRepositories(db)
	machine, err := repos.Machines.FindByName(ctx, name)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("cannot record deliveries: %w", err)
	}

	recorder := func(ctx context.Context, res delivery.Result) error {
		_, err := repos.Deliveries.Record(ctx, domain.Delivery{
			ID:        res.ID,
			MachineID: machine.ID,
			Path:      res.Path,
			Unit:      res.Unit,
			Checksum:  res.Checksum,
		})
		return err
	}
	return recorder, func() { db.Close() }, nil
}
