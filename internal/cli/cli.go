package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/ordersync/internal/app"
	"github.com/Additional-Code/ordersync/internal/dto"
	"github.com/Additional-Code/ordersync/internal/migration"
	"github.com/Additional-Code/ordersync/internal/seeder"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
	"github.com/Additional-Code/ordersync/internal/shopify"
)

const stopTimeout = 10 * time.Second

// NewRootCommand builds the root ordersync CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ordersync",
		Short:         "Mirror remote store orders into a relational database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newOrdersCmd())
	root.AddCommand(newStoresCmd())

	return root
}

// Execute runs the ordersync CLI.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP and gRPC services with the incremental scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Module)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Consume order sync events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Worker)
		},
	})
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				version, err := mig.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd, downCmd, statusCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample orders into the mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _ := cmd.Flags().GetInt("store")
			if store <= 0 {
				return fmt.Errorf("--store must be a positive store number")
			}
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				n, err := seed.Orders(ctx, store)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d orders for store %d\n", n, store)
				return nil
			})
		},
	}
	cmd.Flags().Int("store", 1, "Store number the samples belong to")
	return cmd
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run order synchronisation once",
	}

	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Sync orders created after --since, following every cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _ := cmd.Flags().GetInt("store")
			limit, _ := cmd.Flags().GetInt("limit")
			maxPages, _ := cmd.Flags().GetInt("max-pages")
			rawSince, _ := cmd.Flags().GetString("since")

			since, err := parseSince(rawSince)
			if err != nil {
				return err
			}

			return withSyncer(cmd.Context(), func(ctx context.Context, svc *syncer.Service) error {
				summary, err := svc.BackfillAll(ctx, store, since, limit, maxPages)
				if summary != nil {
					if werr := writeJSON(cmd.OutOrStdout(), summaryOutput(summary)); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	backfill.Flags().Int("store", 0, "Store number")
	backfill.Flags().String("since", "", "Only orders created at or after this RFC 3339 time")
	backfill.Flags().Int("limit", 0, "Page size (default from SYNC_PAGE_LIMIT, max 250)")
	backfill.Flags().Int("max-pages", 0, "Stop after this many pages (0 = all)")
	_ = backfill.MarkFlagRequired("store")

	incremental := &cobra.Command{
		Use:   "incremental",
		Short: "Sync orders updated within --window",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _ := cmd.Flags().GetInt("store")
			limit, _ := cmd.Flags().GetInt("limit")
			maxPages, _ := cmd.Flags().GetInt("max-pages")
			window, _ := cmd.Flags().GetDuration("window")
			if window <= 0 {
				return fmt.Errorf("--window must be positive")
			}

			return withSyncer(cmd.Context(), func(ctx context.Context, svc *syncer.Service) error {
				summary, err := svc.RunIncremental(ctx, store, time.Now().Add(-window), limit, maxPages)
				if summary != nil {
					if werr := writeJSON(cmd.OutOrStdout(), summaryOutput(summary)); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	incremental.Flags().Int("store", 0, "Store number")
	incremental.Flags().Duration("window", 10*time.Minute, "Look-back window for updated orders")
	incremental.Flags().Int("limit", 0, "Page size (default from SYNC_PAGE_LIMIT, max 250)")
	incremental.Flags().Int("max-pages", 0, "Stop after this many pages (0 = all)")
	_ = incremental.MarkFlagRequired("store")

	now := &cobra.Command{
		Use:   "now",
		Short: "Fetch the latest page for one store or all stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, _ := cmd.Flags().GetString("store")
			limit, _ := cmd.Flags().GetInt("limit")
			if err := validateSelector(selector); err != nil {
				return err
			}

			return withSyncer(cmd.Context(), func(ctx context.Context, svc *syncer.Service) error {
				bulk, err := svc.SyncNow(ctx, selector, limit)
				if err != nil {
					return err
				}
				out := dto.BulkSyncResponse{RunID: bulk.RunID}
				for _, o := range bulk.Stores {
					item := dto.StoreOutcomeResponse{Store: o.Store}
					if o.Err != nil {
						item.Error = &dto.ErrorResponse{Kind: "error", Message: o.Err.Error()}
					} else {
						res := dto.NewSyncResultResponse(o.Result)
						item.Result = &res
					}
					out.Stores = append(out.Stores, item)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	now.Flags().String("store", "all", `Store number or "all"`)
	now.Flags().Int("limit", 0, "Page size (default from SYNC_PAGE_LIMIT, max 250)")

	cmd.AddCommand(backfill, incremental, now)
	return cmd
}

func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect remote orders",
	}
	count := &cobra.Command{
		Use:   "count",
		Short: "Print the remote order count of a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _ := cmd.Flags().GetInt("store")
			return withSyncer(cmd.Context(), func(ctx context.Context, svc *syncer.Service) error {
				n, err := svc.CountRemoteOrders(ctx, store)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	count.Flags().Int("store", 0, "Store number")
	_ = count.MarkFlagRequired("store")

	cmd.AddCommand(count)
	return cmd
}

func newStoresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "Inspect configured stores",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured stores and whether their credentials are valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resolver *shopify.Resolver
			opts := fx.Options(app.Core, fx.Populate(&resolver))
			return runWithApp(cmd.Context(), opts, func(context.Context) error {
				stores := make([]dto.StoreResponse, 0)
				for _, n := range resolver.Stores() {
					stores = append(stores, dto.StoreResponse{Number: n, Valid: resolver.Valid(n)})
				}
				return writeJSON(cmd.OutOrStdout(), stores)
			})
		},
	})
	return cmd
}

func parseSince(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("--since must be an RFC 3339 time: %w", err)
	}
	return &t, nil
}

func validateSelector(selector string) error {
	s := strings.TrimSpace(selector)
	if strings.EqualFold(s, "all") {
		return nil
	}
	if n, err := strconv.Atoi(s); err != nil || n <= 0 {
		return fmt.Errorf(`--store must be a store number or "all", got %q`, selector)
	}
	return nil
}

func summaryOutput(s *syncer.RunSummary) any {
	return struct {
		dto.SyncResultResponse
		Pages int `json:"pages"`
	}{dto.NewRunSummaryResponse(s), s.Pages}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withSyncer(ctx context.Context, fn func(context.Context, *syncer.Service) error) error {
	var svc *syncer.Service
	opts := fx.Options(app.Core, fx.Populate(&svc))
	return runWithApp(ctx, opts, func(ctx context.Context) error {
		return fn(ctx, svc)
	})
}

func runUntilDone(ctx context.Context, opts fx.Option) error {
	application := fx.New(opts)
	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return application.Stop(stopCtx)
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
