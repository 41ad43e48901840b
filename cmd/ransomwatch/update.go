package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hive-corporation/ransomwatch/internal/core/service"
)

func newUpdateCommand(a *app) *cobra.Command {
	var opts service.IngestOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download CISA advisories and populate the local index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			index, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			if opts.Refresh {
				fmt.Fprintln(out, "Discovering advisories (live)...")
			} else {
				fmt.Fprintln(out, "Discovering advisories...")
			}

			progress := func(msg string) { fmt.Fprintln(out, msg) }
			summary, err := a.newIngester(index, progress).Run(ctx, opts)
			if err != nil {
				return fmt.Errorf("update aborted after %d advisories: %w", summary.Advisories, err)
			}

			renderSummary(out, summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.IncludeDocuments, "include-pdfs", false, "also parse PDF advisories for IOCs")
	cmd.Flags().BoolVar(&opts.Refresh, "discover", false, "scrape CISA listing pages to discover advisories beyond the built-in catalog")
	return cmd
}

func renderSummary(w io.Writer, summary service.IngestSummary) {
	if summary.Advisories == 0 {
		fmt.Fprintln(w, "No #StopRansomware advisories found.")
		return
	}

	fmt.Fprintf(w, "\nDone! Processed %d advisories, stored %d IOCs.\n", summary.Advisories, summary.IOCsStored)
	if n := len(summary.NewAdvisories); n > 0 {
		fmt.Fprintf(w, "%d advisories were new to the index.\n", n)
	}
	if n := len(summary.Failures); n > 0 {
		fmt.Fprintf(w, "%d artifacts were skipped:\n", n)
		for _, f := range summary.Failures {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}
