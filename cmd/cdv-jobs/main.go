// Package main provides the scheduled CDV maintenance jobs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdv-engine/internal/config"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"
	"cdv-engine/internal/interfaces/router"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// opener wires the services a job runs against.
type opener func() (*router.Services, error)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd(openFromConfig, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openFromConfig() (*router.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database url is not configured", domain.ErrInvalidInput)
	}
	db, err := database.OpenURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return router.NewServices(cfg, db, nil), nil
}

func rootCmd(open opener, out io.Writer) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "cdv-jobs",
		Short: "Run CDV ledger maintenance jobs",
		Long: `Batch jobs for the CDV ledger.

Examples:
  cdv-jobs refresh-maturation
  cdv-jobs redistribute-dates <project-id>
  cdv-jobs allocate-batch <project-id> --limit 50
  cdv-jobs register-units waste 1000 --source lote-2025-03
`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall job timeout")

	run := func(fn func(ctx context.Context, svc *router.Services, args []string) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			svc, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return fn(ctx, svc, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh-maturation",
		Short: "Persist the derived maturation status of every open quota",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, svc *router.Services, _ []string) error {
			n, err := svc.Ledger.RefreshMaturationStatuses(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Info().Int("updated", n).Msg("maturation statuses refreshed")
			fmt.Fprintf(out, "updated %d quota(s)\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "redistribute-dates <project-id>",
		Short: "Spread a project's maturation dates over yearly blocks",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc *router.Services, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			n, err := svc.Ledger.RedistributeMaturationDates(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "redistributed %d quota(s)\n", n)
			return nil
		}),
	})

	var limit int
	allocate := &cobra.Command{
		Use:   "allocate-batch <project-id>",
		Short: "Allocate pool units to a project's generating quotas in number order",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc *router.Services, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := svc.Allocation.AllocateProject(ctx, id, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "allocated %d quota(s), %d remaining\n", len(res.Allocated), res.Remaining)
			for _, s := range res.Shortfalls() {
				fmt.Fprintf(out, "short %s: required %d, available %d\n", s.Category, s.Required, s.Available)
			}
			return nil
		}),
	}
	allocate.Flags().IntVar(&limit, "limit", 0, "Stop after this many quotas (0 = no limit)")
	cmd.AddCommand(allocate)

	var source string
	register := &cobra.Command{
		Use:   "register-units <category> <count>",
		Short: "Append reconciled impact units to the pool",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, svc *router.Services, args []string) error {
			cat, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			var count int
			if _, err := fmt.Sscan(args[1], &count); err != nil {
				return fmt.Errorf("%w: count %q", domain.ErrInvalidInput, args[1])
			}
			res, err := svc.Pool.RegisterUnits(ctx, cat, count, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "registered %d %s unit(s), sequences %d-%d\n", res.Count, res.Category, res.FirstSequence, res.LastSequence)
			return nil
		}),
	}
	register.Flags().StringVar(&source, "source", "", "Reference of the reconciliation batch")
	cmd.AddCommand(register)

	return cmd
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: project id %q", domain.ErrInvalidInput, s)
	}
	return id, nil
}
