package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

const emptyIndexMessage = "Database is empty. Run 'ransomwatch update' first."

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			index, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			stats, err := index.Stats(ctx)
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newListGroupsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-groups",
		Short: "List the ransomware groups covered by indexed advisories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			index, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			groups, err := index.ListGroups(ctx)
			if err != nil {
				return err
			}
			renderGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
}

func renderStats(w io.Writer, stats domain.Stats) {
	if stats.Advisories == 0 {
		fmt.Fprintln(w, emptyIndexMessage)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Database Statistics")
	t.AppendRow(table.Row{"Advisories", stats.Advisories})
	t.AppendRow(table.Row{"Total IOCs", stats.TotalIOCs})

	if len(stats.ByType) > 0 {
		t.AppendSeparator()
		for _, k := range sortedKeys(stats.ByType) {
			t.AppendRow(table.Row{"  " + k, stats.ByType[k]})
		}
	}
	if len(stats.BySource) > 0 {
		t.AppendSeparator()
		for _, k := range sortedKeys(stats.BySource) {
			t.AppendRow(table.Row{"  Source: " + k, stats.BySource[k]})
		}
	}
	t.Render()
}

func renderGroups(w io.Writer, groups []domain.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, emptyIndexMessage)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Ransomware Groups (%d)", len(groups)))
	t.AppendHeader(table.Row{"Group", "Advisory ID"})
	for _, g := range groups {
		t.AppendRow(table.Row{g.Name, g.AdvisoryID})
	}
	t.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
