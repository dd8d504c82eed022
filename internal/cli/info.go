package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newNetworksCommand(flags *globalFlags, opts Options) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List configured networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, env, err := loadSettings(flags)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NETWORK\tCHAIN ID\tRPC\tACCOUNTS\tDESCRIPTION")
			for _, name := range cfg.NetworkNames() {
				network := cfg.Networks[name]
				rpc := "unset"
				if env.RPCURL(network) != "" {
					rpc = "set"
				}
				label := name
				if name == cfg.DefaultNetwork {
					label += " (default)"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", label, network.ChainID, rpc, len(env.Accounts(network)), network.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !live {
				return nil
			}

			registry, err := newRegistry(cfg, env, opts)
			if err != nil {
				return err
			}
			defer registry.Close()
			_, client, err := registry.Client(cmd.Context(), flags.network)
			if err != nil {
				return err
			}
			snapshot, err := client.FetchChainSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nLive: %s\n", snapshot.Name)
			fmt.Fprintf(out, "Chain ID: %s\n", snapshot.ChainID)
			fmt.Fprintf(out, "Block: %s\n", snapshot.BlockNumber)
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "also query chain id and latest block of the selected network")
	return cmd
}

func newHistoryCommand(flags *globalFlags, opts Options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the latest journaled operations on the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.records.ListLatest(ctx, a.network, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRUN\tKIND\tSTATUS\tCONTRACT\tADDRESS\tTX")
			for _, record := range records {
				name := record.Contract
				if record.FutureID != "" {
					name = record.FutureID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					time.Unix(record.CreatedAt, 0).UTC().Format(time.RFC3339), shortRunID(record.RunID),
					record.Kind, record.Status, name, record.Address, record.TxHash)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of records to show")
	return cmd
}

// shortRunID keeps the first uuid group, which is enough to tell runs apart.
func shortRunID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newVersionCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lsrwactl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lsrwactl %s\n", Version)
		},
	}
}
