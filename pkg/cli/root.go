package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
)

// Opener opens the ledger for a command. The returned close function releases the store.
type Opener func(ctx context.Context) (Ledger, func() error, error)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command. Output is written to out.
func NewRootCommand(open Opener, out io.Writer) *Command {
	root := &Command{
		Name:        "pricebulk-cli",
		Description: "pricebulk - usage ledger operator CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("pricebulk-cli", flag.ContinueOnError),
	}

	root.Subcommands["stats"] = newStatsCommand(open, out)
	root.Subcommands["history"] = newHistoryCommand(open, out)
	root.Subcommands["redact"] = newRedactCommand(open, out)
	root.Subcommands["period"] = newPeriodCommand(out)

	root.Run = func(ctx context.Context, args []string) error {
		return root.usage(out)
	}
	return root
}

// Execute dispatches args to the matching subcommand
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.Run(ctx, nil)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// withLedger opens the ledger, runs fn and closes the store
func withLedger(ctx context.Context, open Opener, fn func(Ledger) error) (err error) {
	ledger, closeFn, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close store: %w", cerr)
		}
	}()
	return fn(ledger)
}
