package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmextract/internal/style"
)

var checkCmd = &cobra.Command{
	Use:   "check <filters.yaml>",
	Short: "Validate a filter configuration",
	Long: `Parse and compile a filter configuration without reading any input.

All filter expressions, mappings, column sources and Lua expressions are
compiled, so errors surface here instead of minutes into an extraction.`,
	Args: cobra.ExactArgs(1),
	Run:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	styleCfg, err := style.Load(args[0])
	if err != nil {
		exitWithError("failed to load filter configuration", err)
	}
	table, err := styleCfg.Compile()
	if err != nil {
		exitWithError("failed to compile filter configuration", err)
	}

	fmt.Printf("table %q: ok\n", table.Name)
	fmt.Printf("  columns: %d\n", len(table.Columns))
	for _, col := range table.Columns {
		fmt.Printf("    %-20s %s (%s)\n", col.Name, sourceName(col.Source), col.Type)
	}
	fmt.Printf("  geometry: nodes=%v ways=%s\n", table.NodeGeometry, waySummary(table))
	if len(table.Mappings) > 0 {
		fmt.Printf("  mappings: %d\n", len(table.Mappings))
	}
}

func sourceName(src style.ColumnSource) string {
	switch src.Kind {
	case style.SourceTag:
		return fmt.Sprintf("tag %q", src.Key)
	case style.SourceMeta:
		return fmt.Sprintf("meta %q", src.Key)
	case style.SourceAllTags:
		return "all tags"
	case style.SourceAllMeta:
		return "all metadata"
	case style.SourceRefs:
		return "node refs"
	case style.SourceMapping:
		return fmt.Sprintf("mapping %q", src.Mapping.Name)
	case style.SourceExpr:
		return "expression"
	default:
		return "unknown"
	}
}

func waySummary(table *style.Table) string {
	if !table.Way.Enabled {
		return "off"
	}
	return fmt.Sprintf("%s (closed: %s)", table.Way.Mode, table.ClosedWayMode)
}
