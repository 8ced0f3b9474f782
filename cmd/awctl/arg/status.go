package arg

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/AttokWarden/internal/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result string
		if err := call("GetStatus", []interface{}{&result}); err != nil {
			return err
		}

		var st ipc.StatusReply
		if err := json.Unmarshal([]byte(result), &st); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Engine:   %s\n", st.State)
		if st.Paused {
			fmt.Fprintln(out, "Polling:  paused for sleep")
		}
		fmt.Fprintf(out, "Students: %d active, %d departed\n", st.Active, st.Departed)
		fmt.Fprintf(out, "Voice:    %s\n", onOff(st.Voice))
		fmt.Fprintf(out, "Class end: %s (length %d-%d minutes)\n",
			endPolicy(st.AutoDepart), st.ClassMinutesMin, st.ClassMinutesMax)
		if !st.LastScrape.IsZero() {
			fmt.Fprintf(out, "Last scrape: %s\n", st.LastScrape.Format("15:04:05"))
		}
		if st.Failures > 0 {
			fmt.Fprintf(out, "Consecutive failures: %d\n", st.Failures)
		}
		if st.LastError != "" {
			fmt.Fprintf(out, "Last error: %s\n", st.LastError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func endPolicy(autoDepart bool) string {
	if autoDepart {
		return "auto depart"
	}
	return "overrun alert"
}
