package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/guestcfg/internal/api"
	"github.com/jbweber/homelab/guestcfg/internal/cloudconfig"
	"github.com/jbweber/homelab/guestcfg/internal/config"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
	"github.com/jbweber/homelab/guestcfg/internal/provision"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print cloud-config documents without delivering them",
	}
	cmd.AddCommand(newRenderNetworksCmd())
	cmd.AddCommand(newRenderHostnameCmd())
	return cmd
}

func newRenderNetworksCmd() *cobra.Command {
	var (
		file  string
		local bool
	)
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "Print the network document for a machine definition",
		Long: `Print the network document for a machine definition.

By default interfaces are matched by the adapter MAC addresses in the
definition and only its static addresses are exported. With --local the
interfaces and addresses of this host are used instead, as when running
inside the guest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.LoadMachineDefinition(file)
			if err != nil {
				return err
			}
			doc, err := renderNetworks(cmd.Context(), def, local)
			if err != nil {
				return err
			}
			return writeDocument(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Machine definition file")
	cmd.Flags().BoolVar(&local, "local", false, "Read interfaces from this host")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func renderNetworks(ctx context.Context, def *config.MachineDefinition, local bool) (cloudconfig.NetworkConfigDocument, error) {
	if !local {
		return api.RenderOfflineNetworks(ctx, api.MachineTopology{
			Machine:  def.Machine(),
			Specs:    def.Networks,
			Adapters: def.Adapters,
		}), nil
	}

	facts, err := guest.NewLinkFacts()
	if err != nil {
		return cloudconfig.NetworkConfigDocument{}, err
	}
	p := provision.New(nil, def.Capabilities, provision.WithFacts(facts))
	return p.RenderNetworks(ctx, def.Networks, def.Adapters)
}

func newRenderHostnameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hostname NAME",
		Short: "Print the hostname document for NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := cloudconfig.RenderHostname(args[0])
			if err != nil {
				return err
			}
			return writeDocument(cmd.OutOrStdout(), doc)
		},
	}
}

func writeDocument(w io.Writer, doc cloudconfig.Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
