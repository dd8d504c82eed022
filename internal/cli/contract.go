package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDeployCommand(flags *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy LSRWAExpress with USDC_ADDRESS and TOKEN_ADDRESS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, opts,
				requireAddress(usdcEnv), requireAddress(tokenEnv))
			if err != nil {
				return err
			}
			defer a.Close()

			service, err := a.service(ctx)
			if err != nil {
				return err
			}
			signer, err := a.signer(ctx)
			if err != nil {
				return err
			}
			contract := a.cfg.Contract
			result, err := service.Deploy(ctx, signer, a.lookup(contract.USDCEnv), a.lookup(contract.TokenEnv))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deployed to: %s\n", result.Address.Hex())
			return nil
		},
	}
}

func newOwnershipCommand(flags *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ownership",
		Short: "Transfer ownership of the deployed contract to OWNER_ADDRESS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, opts,
				requireAddress(ownerEnv), optionalAddress(contractEnv))
			if err != nil {
				return err
			}
			defer a.Close()

			service, err := a.service(ctx)
			if err != nil {
				return err
			}
			contract, err := service.ContractAddress(ctx, a.lookup(a.cfg.Contract.AddressEnv))
			if err != nil {
				return err
			}
			signer, err := a.signer(ctx)
			if err != nil {
				return err
			}
			result, err := service.TransferOwnership(ctx, signer, contract, a.lookup(a.cfg.Contract.OwnerEnv))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Changed ownership to: %s\n", result.NewOwner.Hex())
			fmt.Fprintf(out, "Contract: %s\n", result.Contract.Hex())
			return nil
		},
	}
}

func newVerifyCommand(flags *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the deployed contract source on the block explorer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, opts,
				requireAddress(usdcEnv), requireAddress(tokenEnv), optionalAddress(contractEnv))
			if err != nil {
				return err
			}
			defer a.Close()

			service, err := a.service(ctx)
			if err != nil {
				return err
			}
			contract, err := service.ContractAddress(ctx, a.lookup(a.cfg.Contract.AddressEnv))
			if err != nil {
				return err
			}

			verifyCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.Etherscan.TimeoutSeconds)*time.Second)
			defer cancel()
			result, err := service.Verify(verifyCtx, contract, a.lookup(a.cfg.Contract.USDCEnv), a.lookup(a.cfg.Contract.TokenEnv))
			if err != nil {
				return err
			}
			if result.AlreadyVerified {
				fmt.Fprintf(cmd.OutOrStdout(), "Already verified: %s\n", result.Contract.Hex())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Verified: %s (guid %s)\n", result.Contract.Hex(), result.GUID)
			return nil
		},
	}
}
