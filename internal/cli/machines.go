package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/guestcfg/internal/config"
	"github.com/jbweber/homelab/guestcfg/internal/domain"
	"github.com/jbweber/homelab/guestcfg/internal/repository"
)

func newMachinesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "Manage the machine inventory",
	}
	cmd.AddCommand(newMachinesImportCmd(opts))
	cmd.AddCommand(newMachinesListCmd(opts))
	return cmd
}

func newMachinesImportCmd(opts *options) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update machines from definition files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.cfg.InitializeDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			repos := repository.NewRepositories(db)

			for _, file := range files {
				def, err := config.LoadMachineDefinition(file)
				if err != nil {
					return err
				}
				m, err := importMachine(cmd.Context(), repos, def)
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", file, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", m.Name, m.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Machine definition files")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// importMachine stores def, replacing an existing machine with the same
// name along with its networks and adapters.
func importMachine(ctx context.Context, repos *repository.Repositories, def *config.MachineDefinition) (domain.Machine, error) {
	m := def.Machine()
	existing, err := repos.Machines.FindByName(ctx, def.Name)
	switch {
	case err == nil:
		m.ID = existing.ID
	case !errors.Is(err, repository.ErrNotFound):
		return domain.Machine{}, err
	}

	saved, err := repos.Machines.Save(ctx, m)
	if err != nil {
		return domain.Machine{}, err
	}
	if err := repos.NetworkSpecs.ReplaceForMachine(ctx, saved.ID, def.Networks); err != nil {
		return domain.Machine{}, err
	}
	if err := repos.Adapters.ReplaceForMachine(ctx, saved.ID, def.Adapters); err != nil {
		return domain.Machine{}, err
	}
	log.G(ctx).WithField("machine", saved.Name).WithField("id", saved.ID).Info("imported machine")
	return saved, nil
}

func newMachinesListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List machines in the inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.cfg.InitializeDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			machines, err := repository.NewRepositories(db).Machines.FindAll(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tHOSTNAME\tADDRESS\tUSER")
			for _, m := range machines {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Hostname, m.Address, m.SSHUser)
			}
			return tw.Flush()
		},
	}
}
