// Package cli implements the lsrwactl command tree.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"LSRWA-Express/internal/lsrwa"
	"LSRWA-Express/internal/web3/provider"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// Options customises the command tree. The zero value targets real networks
// and writes results to stdout.
type Options struct {
	Stdout io.Writer
	// Dialer replaces the RPC dialer of every network.
	Dialer provider.DialFunc
	// Verifier replaces the Etherscan client.
	Verifier lsrwa.Verifier
}

type globalFlags struct {
	network    string
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the lsrwactl root command.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "lsrwactl",
		Short:         "Deploy, hand over and verify the LSRWAExpress contract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)

	defaultConfig := os.Getenv("LSRWA_CONFIG")
	if defaultConfig == "" {
		defaultConfig = filepath.Join("configs", "lsrwa.json")
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.network, "network", "", "network to use (defaults to the configured default network)")
	pf.StringVar(&flags.configPath, "config", defaultConfig, "path to the JSON configuration")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file with RPC URLs, keys and contract addresses")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newDeployCommand(flags, opts),
		newOwnershipCommand(flags, opts),
		newVerifyCommand(flags, opts),
		newIgnitionCommand(flags, opts),
		newNetworksCommand(flags, opts),
		newHistoryCommand(flags, opts),
		newVersionCommand(opts),
	)
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, opts Options) error {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
