package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/AttokWarden/internal/render"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List today's students in board order",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result string
		if err := call("ListStudents", []interface{}{&result}); err != nil {
			return err
		}

		var view render.View
		if err := json.Unmarshal([]byte(result), &view); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		printView(cmd.OutOrStdout(), view)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printView(out io.Writer, view render.View) {
	if len(view.Active) == 0 && len(view.Departed) == 0 {
		fmt.Fprintln(out, "No students on the board")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIN\tEND\tCLASS\tSTATUS")
	for _, c := range append(view.Active, view.Departed...) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%s\n", c.Name, c.CheckIn, c.End, c.ClassMinutes, c.Text)
	}
	w.Flush()
}
