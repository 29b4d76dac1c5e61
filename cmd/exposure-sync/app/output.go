package app

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/proxtrace/exposure-sync/internal/status"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// tabular values can also be printed as a table
type tabular interface {
	header() []string
	rows() [][]string
}

type historyTable []status.HistoryEntry

func (h historyTable) header() []string {
	return []string{"At", "Kind", "Success", "Detail"}
}

func (h historyTable) rows() [][]string {
	out := make([][]string, 0, len(h))
	for _, e := range h {
		out = append(out, []string{
			e.At.Local().Format(time.DateTime),
			string(e.Kind),
			fmt.Sprintf("%t", e.Success),
			e.Detail,
		})
	}
	return out
}

// render prints v in the format selected by the command's --format flag, JSON by default
func render(cmd *cobra.Command, v any) error {
	format := formatJSON
	if f := cmd.Flags().Lookup("format"); f != nil && f.Value.String() != "" {
		format = f.Value.String()
	}

	switch format {
	case formatJSON:
		return printJSON(cmd.OutOrStdout(), v)
	case formatTable:
		t, ok := v.(tabular)
		if !ok {
			return fmt.Errorf("output of %s cannot be printed as a table", cmd.Name())
		}
		return printTable(cmd.OutOrStdout(), t)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, t tabular) error {
	header := make([]any, 0, len(t.header()))
	for _, h := range t.header() {
		header = append(header, h)
	}

	table := tablewriter.NewWriter(w)
	table.Header(header...)
	if err := table.Bulk(t.rows()); err != nil {
		return fmt.Errorf("failed to build table: %w", err)
	}
	return table.Render()
}
