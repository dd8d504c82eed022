package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"LSRWA-Express/internal/ignition"
)

func newIgnitionCommand(flags *globalFlags, opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignition",
		Short: "Run declarative deployment modules",
	}
	cmd.AddCommand(newIgnitionDeployCommand(flags, opts), newIgnitionStatusCommand(flags, opts))
	return cmd
}

func moduleName(args []string, fallback string) string {
	if len(args) > 0 {
		return args[0]
	}
	return fallback
}

func newIgnitionDeployCommand(flags *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [module]",
		Short: "Execute a module, skipping futures already journaled on this chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			module, err := ignition.Load(a.cfg.Paths.Modules, moduleName(args, a.cfg.Contract.Name))
			if err != nil {
				return err
			}
			runner, err := a.runner()
			if err != nil {
				return err
			}
			signer, err := a.signer(ctx)
			if err != nil {
				return err
			}
			result, err := runner.Run(ctx, module, signer)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deployed Addresses (%s)\n", module.Name)
			for _, future := range result.Futures {
				if future.Kind != ignition.FutureContract {
					continue
				}
				fmt.Fprintf(out, "%s - %s\n", future.ID, future.Address.Hex())
			}
			return nil
		},
	}
}

func newIgnitionStatusCommand(flags *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status [module]",
		Short: "Show which futures of a module are journaled on this chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			module, err := ignition.Load(a.cfg.Paths.Modules, moduleName(args, a.cfg.Contract.Name))
			if err != nil {
				return err
			}
			runner, err := a.runner()
			if err != nil {
				return err
			}
			statuses, err := runner.Status(ctx, module)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FUTURE\tKIND\tSTATUS\tADDRESS\tTX")
			for _, status := range statuses {
				state, address, tx := "pending", "-", "-"
				if status.Executed {
					state, address, tx = "executed", status.Record.Address, status.Record.TxHash
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", status.ID, status.Kind, state, address, tx)
			}
			return w.Flush()
		},
	}
}
