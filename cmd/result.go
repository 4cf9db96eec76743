package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/client"
	"github.com/abhisek/psytest/internal/result"
)

var resultCmd = &cobra.Command{
	Use:   "result <sessionId>",
	Short: "Show the scored result of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var (
			res result.TestResult
			err error
		)
		if server, _ := cmd.Flags().GetString("server"); server != "" {
			c, cerr := client.New(server, nil)
			if cerr != nil {
				return cerr
			}
			res, err = c.Result(ctx, args[0])
		} else {
			d, derr := openDeps(cmd)
			if derr != nil {
				return derr
			}
			defer d.Close()
			res, err = d.service.Result(ctx, args[0])
		}
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	resultCmd.Flags().String("server", "", "Fetch from a psytest server instead of the local database")
	resultCmd.Flags().Bool("json", false, "Print the raw result as JSON")
}

func printResult(w io.Writer, res result.TestResult) {
	fmt.Fprintf(w, "Session:   %s\n", res.SessionID)
	fmt.Fprintf(w, "Test:      %s\n", res.TestType)
	fmt.Fprintf(w, "Completed: %s\n", res.Timestamp.Local().Format("2006-01-02 15:04"))
	if res.Placeholder {
		fmt.Fprintln(w, "\nThe result is not available yet.")
	}
	if res.Severity != "" {
		fmt.Fprintf(w, "Score:     %g (%s)\n", res.TotalScore, strings.ReplaceAll(res.Severity, "_", " "))
	}

	keys := make([]string, 0, len(res.Scores))
	for k := range res.Scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		fmt.Fprintln(w, "\nScores:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-20s %g\n", k, res.Scores[k])
		}
	}

	if res.Analysis != "" {
		fmt.Fprintf(w, "\n%s\n", res.Analysis)
	}
	if len(res.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range res.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}
