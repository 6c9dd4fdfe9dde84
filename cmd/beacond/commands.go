package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bft-labs/beacons/internal/cliconfig"
	"github.com/bft-labs/beacons/pkg/beacons"
	"github.com/bft-labs/beacons/pkg/log"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the saved beacons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.load(cmd); err != nil {
				return err
			}
			store, err := beacons.OpenStore(cmd.Context(), opts.cfg.ManagerConfig())
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REF\tKIND\tNAME\tDESIRED\tMODE\tTX POWER")
			for _, r := range records {
				fmt.Fprintf(tw, "s:%d\t%s\t%s\t%s\t%s\t%s\n",
					r.StorageID, r.Kind, r.Name, r.Desired, r.Mode, r.TxPower)
			}
			return tw.Flush()
		},
	}
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create and save the beacons listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			specs, err := cliconfig.LoadSeed(args[0])
			if err != nil {
				return err
			}
			return importSpecs(cmd.Context(), opts.cfg, logger, specs)
		},
	}
}

func importSpecs(ctx context.Context, cfg cliconfig.Config, logger log.Logger, specs []beacons.Spec) error {
	mc := cfg.ManagerConfig()
	// Importing only records beacons; the daemon brings them on air.
	mc.RadioDisabled = true

	m, err := beacons.New(mc, beacons.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for i, spec := range specs {
		info, err := m.Create(ctx, spec)
		if err != nil {
			return fmt.Errorf("beacon %d: %w", i+1, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Ref, info.Kind, info.Name)
	}
	return nil
}
