package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pricebulk/pricebulk/pkg/usage"
)

// Ledger is the subset of usage.Ledger the commands use
type Ledger interface {
	SubscriptionInfo(ctx context.Context, shop string) (*usage.SubscriptionInfo, error)
	UsageStats(ctx context.Context, shop, planName string) (*usage.UsageStats, error)
	UsageHistory(ctx context.Context, shop string, limit int) ([]*usage.UsageRecord, error)
	RedactShop(ctx context.Context, shop string) error
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func shopFlag(fs *flag.FlagSet) *string {
	return fs.String("shop", "", "Shop domain (e.g. example.myshopify.com)")
}

func requireShop(shop string) (string, error) {
	shop = strings.ToLower(strings.TrimSpace(shop))
	if shop == "" {
		return "", fmt.Errorf("--shop is required")
	}
	return shop, nil
}

func newStatsCommand(open Opener, out io.Writer) *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Show usage and remaining allowance for the current billing period",
		Flags:       newFlagSet("stats", out),
	}
	shopArg := shopFlag(cmd.Flags)
	plan := cmd.Flags.String("plan", "", "Plan name to evaluate against (defaults to the stored plan)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		shop, err := requireShop(*shopArg)
		if err != nil {
			return err
		}

		return withLedger(ctx, open, func(ledger Ledger) error {
			planName := *plan
			if planName == "" {
				info, err := ledger.SubscriptionInfo(ctx, shop)
				if err != nil {
					return err
				}
				planName = info.PlanName
			}

			stats, err := ledger.UsageStats(ctx, shop, planName)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		})
	}
	return cmd
}

func newHistoryCommand(open Opener, out io.Writer) *Command {
	cmd := &Command{
		Name:        "history",
		Description: "List usage records, newest billing period first",
		Flags:       newFlagSet("history", out),
	}
	shopArg := shopFlag(cmd.Flags)
	limit := cmd.Flags.Int("limit", 12, "Maximum number of billing periods")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		shop, err := requireShop(*shopArg)
		if err != nil {
			return err
		}
		if *limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		return withLedger(ctx, open, func(ledger Ledger) error {
			records, err := ledger.UsageHistory(ctx, shop, *limit)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintf(out, "No usage recorded for %s\n", shop)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PERIOD\tPRICE\tCOMPARE-AT\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.BillingPeriod, r.PriceUpdates, r.CompareAtUpdates, r.UpdatedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		})
	}
	return cmd
}

func newRedactCommand(open Opener, out io.Writer) *Command {
	cmd := &Command{
		Name:        "redact",
		Description: "Delete every subscription and usage record of a shop",
		Flags:       newFlagSet("redact", out),
	}
	shopArg := shopFlag(cmd.Flags)
	yes := cmd.Flags.Bool("yes", false, "Confirm the deletion")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		shop, err := requireShop(*shopArg)
		if err != nil {
			return err
		}
		if !*yes {
			return errors.New("refusing to delete shop data without --yes")
		}

		return withLedger(ctx, open, func(ledger Ledger) error {
			if err := ledger.RedactShop(ctx, shop); err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted all data for %s\n", shop)
			return nil
		})
	}
	return cmd
}

func newPeriodCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "period",
		Description: "Show the billing period for an anchor day",
		Flags:       newFlagSet("period", out),
	}
	anchor := cmd.Flags.Int("anchor", 0, "Billing cycle anchor day (1-31)")
	at := cmd.Flags.String("at", "", "Instant to resolve, YYYY-MM-DD or RFC3339 (defaults to now)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *anchor < 1 || *anchor > 31 {
			return fmt.Errorf("--anchor must be between 1 and 31, got %d", *anchor)
		}

		now := time.Now().UTC()
		if *at != "" {
			t, err := parseInstant(*at)
			if err != nil {
				return err
			}
			now = t
		}

		fmt.Fprintf(out, "Period:     %s\n", usage.PeriodKey(*anchor, now))
		fmt.Fprintf(out, "Started:    %s\n", usage.CurrentPeriodStart(*anchor, now).Format(time.RFC3339))
		fmt.Fprintf(out, "Next reset: %s\n", usage.NextResetDate(*anchor, now).Format(time.RFC3339))
		return nil
	}
	return cmd
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}
