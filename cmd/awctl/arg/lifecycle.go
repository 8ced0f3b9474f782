package arg

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"confirm"},
	Short:   "Confirm the board session is logged in and start polling",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call("Start", nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Board polling started")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop polling the board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call("Stop", nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Board polling stopped")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Reopen the board session and resume polling",
	Long: `Reopen the board session and clear the failure counter. Students
already seen today are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call("Restart", nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Board session restarted")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget today's students and notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call("Reset", nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session reset")
		return nil
	},
}

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Toggle spoken notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		if err := call("ToggleVoice", []interface{}{&on}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Voice %s\n", onOff(on))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, resetCmd, voiceCmd)
}
