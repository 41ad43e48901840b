package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hive-corporation/ransomwatch/internal/adapter/exporter"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the index as a JSON snapshot, STIX 2.1 bundle, or CEF feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			index, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			exp, _, err := exporter.New(format, index)
			if err != nil {
				return fmt.Errorf("%w (use %s)", err, strings.Join(exporter.Formats, ", "))
			}
			data, err := exp.Export(ctx)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), data)
				return err
			}
			if err := os.WriteFile(out, []byte(data), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s feed to %s\n", format, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "feed format: json, stix, cef")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
