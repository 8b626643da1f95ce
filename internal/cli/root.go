// Package cli implements the guestcfg command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/guestcfg/internal/api"
	"github.com/jbweber/homelab/guestcfg/internal/config"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
)

// options are shared by every subcommand
type options struct {
	configPath string
	dbPath     string
	logLevel   string

	lookupEnv func(string) (string, bool)
	cfg       *config.Config
}

// NewRootCmd builds the guestcfg command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{lookupEnv: os.LookupEnv})
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guestcfg",
		Short: "Configure CoreOS guest networking and hostnames",
		Long: `guestcfg renders cloud-config documents that bind static addresses to
guest interfaces and set hostnames, and delivers them to guests over SSH.

Examples:
  # Serve the inventory API and NoCloud endpoints
  guestcfg serve

  # Configure a guest from a definition file
  guestcfg apply -f core-01.yml

  # Print the network document a guest would receive
  guestcfg render networks -f core-01.yml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to the inventory database")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newApplyCmd(opts))
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newMachinesCmd(opts))

	return cmd
}

// Execute runs the command line with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// load builds the configuration: file, then environment, then flags.
func (o *options) load() error {
	cfg := config.NewConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(o.lookupEnv); err != nil {
		return err
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// dial opens an SSH connection to m using the configured credentials.
func (o *options) dial(ctx context.Context, m domain.Machine) (api.GuestConn, error) {
	sshCfg := o.cfg.GuestSSH(m.Address, m.SSHUser)
	log.G(ctx).WithField("address", sshCfg.Address).Debug("dialing guest")
	conn, err := guest.DialSSH(ctx, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", m.Name, err)
	}
	return conn, nil
}
