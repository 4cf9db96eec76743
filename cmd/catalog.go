package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/dimension"
	"github.com/abhisek/psytest/internal/testtype"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the built-in question catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available test types",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cat, err := testtype.Builtin()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TEST\tQUESTIONS\tLANGUAGES\tTITLE")
		for _, t := range cat.TestTypes() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.TestType, t.QuestionCount, strings.Join(t.Languages, ","), t.Title)
		}
		return w.Flush()
	},
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify lookup tables cover every catalog question",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, cat, err := testtype.Builtin()
		if err != nil {
			return err
		}
		tables, err := dimension.BuiltinTables()
		if err != nil {
			return err
		}
		if err := tables.Verify(cat); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range tables.Tables() {
			d, err := reg.Get(t.TestType)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ok  %-8s table %s  (%s)\n", t.TestType, t.Version, d.Title)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogCheckCmd)
}
