package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newConfigCmd reads and writes the config document by dot-path.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change configuration values",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <path>",
			Short: "Print the value at a dot-path (e.g. clipboardStore.history.retainDays)",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				result := app.doc.Get(args[0])
				if !result.Exists() {
					return fmt.Errorf("no value at %s", args[0])
				}

				fmt.Println(result.Raw)

				return nil
			},
		},
		&cobra.Command{
			Use:   "set <path> <value>",
			Short: "Set the value at a dot-path",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.doc.Set(args[0], coerceValue(args[1]))
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Println(app.doc.Path())
				return nil
			},
		},
	)

	return cmd
}

// coerceValue interprets CLI input as bool or number where it parses as
// one, string otherwise, so `config set ... true` stores a JSON boolean.
func coerceValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}

	return raw
}
