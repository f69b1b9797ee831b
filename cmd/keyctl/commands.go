package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"keygate/internal/config"
	"keygate/internal/infrastructure"
	"keygate/internal/logger"
	"keygate/internal/model"
	"keygate/internal/service"
	transportGRPC "keygate/internal/transport/grpc"
)

// withService loads config, opens the store and runs fn.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: "warn", Format: cfg.LogFormat})

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	svc, cleanup, err := infrastructure.OpenService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTokensCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "tokens", Short: "Manage referral tokens"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List unused referral tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				tokens, err := svc.ListTokens(ctx)
				if err != nil {
					return err
				}
				return printJSON(tokens)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Create a one-time referral token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				token, err := svc.GenerateToken(ctx)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	})
	return cmd
}

func newResellersCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "resellers", Short: "Manage resellers and their credits"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List resellers with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				resellers, err := svc.ListResellers(ctx)
				if err != nil {
					return err
				}
				return printJSON(resellers)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [username]",
		Short: "Delete a reseller; their keys stop verifying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.DeleteReseller(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Reseller %s deleted\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "credit [username] [amount]",
		Short: "Add credits to a reseller",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				resellers, err := svc.AddCredits(ctx, model.AddCreditsRequest{Username: args[0], Amount: amount})
				if err != nil {
					return err
				}
				return printJSON(resellers)
			})
		},
	})
	return cmd
}

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Manage license keys"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [username]",
		Short: "List a reseller's keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				keys, err := svc.ListKeys(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	})

	var req model.IssueKeyRequest
	issue := &cobra.Command{
		Use:   "issue [username]",
		Short: "Mint a key against a reseller's balance",
		Long: `Mint a key against a reseller's balance. Running servers pick the
key up on their next index reconcile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Username = args[0]
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				key, err := svc.IssueKey(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(key)
			})
		},
	}
	issue.Flags().StringVar(&req.GameName, "game", model.GamePUBGMobile, "game name")
	issue.Flags().StringVar(&req.CustomKey, "custom", "", "custom key value (random when empty)")
	issue.Flags().IntVar(&req.DeviceLimit, "devices", 1, "device limit (1, 2 or 100)")
	issue.Flags().IntVar(&req.ExpiryDays, "days", 30, "validity in days")
	cmd.AddCommand(issue)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [username] [key-id]",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.DeleteKey(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Key %s deleted\n", args[1])
				return nil
			})
		},
	})
	return cmd
}

func newVerifyCommand() *cobra.Command {
	var addr, game, ip string
	cmd := &cobra.Command{
		Use:   "verify [key]",
		Short: "Verify a key against a running gRPC verification server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := transportGRPC.NewClient(addr)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := client.Verify(ctx, &transportGRPC.VerifyRequest{Key: args[0], Game: game, IP: ip})
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("verification failed: %s", res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC server address")
	cmd.Flags().StringVar(&game, "game", model.GamePUBGMobile, "game name")
	cmd.Flags().StringVar(&ip, "ip", "", "device IP (defaults to this host's address as seen by the server)")
	return cmd
}
