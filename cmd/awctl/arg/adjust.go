package arg

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

var adjustCmd = &cobra.Command{
	Use:   "adjust <name> <+|-|minutes>",
	Short: "Lengthen or shorten a student's class",
	Long: `Change a student's class length. "+" and "-" move by the daemon's
adjust_step, a signed number moves by that many minutes.
Examples:
  awctl adjust 김도윤 +
  awctl adjust 이서연 -- -20`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result string
		switch args[1] {
		case "+", "-":
			if err := call("Step", []interface{}{&result}, args[0], args[1] == "+"); err != nil {
				return err
			}
		default:
			delta, err := parseDelta(args[1])
			if err != nil {
				return err
			}
			if err := call("Adjust", []interface{}{&result}, args[0], int32(delta)); err != nil {
				return err
			}
		}

		var rec session.Record
		if err := json.Unmarshal([]byte(result), &rec); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d minutes, ends %s\n",
			rec.Name, rec.ClassMinutes, boardtime.Format(rec.End.Local()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adjustCmd)
}

func parseDelta(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid adjustment %q: use +, - or a non-zero number of minutes", s)
	}
	return n, nil
}
