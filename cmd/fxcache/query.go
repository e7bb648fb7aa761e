package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/internal/service"
)

// withService runs fn against a freshly connected, not yet populated cache.
// Logs go to stderr so stdout only carries results.
func withService(ctx context.Context, opts *rootOptions, fn func(*service.RateService) error) error {
	a, err := newApp(ctx, opts.configPath, os.Stderr, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(service.NewRateService(a.engine, nil, a.log, nil))
}

func newCheckDBCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-db",
		Short: "Check that the database has the tables the cache loads from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), opts, func(s *service.RateService) error {
				if err := s.CheckCompatibility(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "database is compatible")
				return nil
			})
		},
	}
}

func newRateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rate FROM_ID TO_ID DATE",
		Short: "Look up the rate between two currency ids as of DATE (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid FROM_ID %q: %w", args[0], err)
			}
			to, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid TO_ID %q: %w", args[1], err)
			}
			date, err := model.ParseDate(args[2])
			if err != nil {
				return err
			}

			return withService(cmd.Context(), opts, func(s *service.RateService) error {
				res, err := s.GetRate(cmd.Context(), model.CurrencyID(from), model.CurrencyID(to), date)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newRateXuidCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rate-xuid FROM TO DATE",
		Short: "Look up the rate between two currency codes as of DATE (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := model.ParseDate(args[2])
			if err != nil {
				return err
			}

			return withService(cmd.Context(), opts, func(s *service.RateService) error {
				res, err := s.GetRateByXuid(cmd.Context(), args[0], args[1], date)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Load the cache and print every cached rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), opts, func(s *service.RateService) error {
				rows, err := s.DisplayCache(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(rows)
				}
				return printRows(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as a JSON array")
	return cmd
}

func printResult(w io.Writer, res *ports.RateResult) error {
	if !res.Found {
		_, err := fmt.Fprintf(w, "%s -> %s on %s: no rate\n", res.From, res.To, res.Date)
		return err
	}
	_, err := fmt.Fprintf(w, "%s -> %s on %s: %s\n", res.From, res.To, res.Date, strconv.FormatFloat(res.Rate, 'g', -1, 64))
	return err
}

func printRows(w io.Writer, rows []model.RateRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tDATE\tRATE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", r.From, r.To, r.Date, strconv.FormatFloat(r.Rate, 'g', -1, 64))
	}
	return tw.Flush()
}
