package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hive-corporation/ransomwatch/internal/adapter/handler"
	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/service"
)

func newCheckCommand(a *app) *cobra.Command {
	var (
		asJSON bool
		server string
	)

	cmd := &cobra.Command{
		Use:   "check <ip>",
		Short: "Look up an IP address (defanged input like 192[.]168[.]1[.]1 is accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				result domain.SearchResult
				err    error
			)
			if server != "" {
				result, err = checkRemote(ctx, server, args[0])
			} else {
				result, err = a.checkLocal(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return renderCheck(cmd.OutOrStdout(), result, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().StringVar(&server, "server", "", "query a ransomwatch gRPC server at host:port instead of the local index")
	return cmd
}

func (a *app) checkLocal(ctx context.Context, query string) (domain.SearchResult, error) {
	index, err := a.openIndex(ctx)
	if err != nil {
		return domain.SearchResult{}, err
	}
	defer index.Close()

	return service.NewLookup(index).Check(ctx, query)
}

func checkRemote(ctx context.Context, addr, query string) (domain.SearchResult, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return handler.NewLookupClient(conn).CheckIOC(ctx, query)
}

func renderCheck(w io.Writer, result domain.SearchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Query != result.NormalizedValue {
		fmt.Fprintf(w, "Normalized: %s -> %s\n", result.Query, result.NormalizedValue)
	}

	if !result.Found {
		fmt.Fprintf(w, "No matches found for %s in CISA #StopRansomware advisories.\n", result.NormalizedValue)
		return nil
	}

	fmt.Fprintf(w, "MATCH FOUND: %s appears in %d advisory(ies):\n\n", result.NormalizedValue, len(result.Matches))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Advisory ID", "Title", "Source", "Published", "URL"})
	for _, m := range result.Matches {
		published := "-"
		if m.Published != nil {
			published = m.Published.Format("2006-01-02")
		}
		t.AppendRow(table.Row{m.AdvisoryID, m.Title, m.Source, published, m.URL})
	}
	t.Render()
	return nil
}
