package arg

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/SoarinFerret/AttokWarden/internal/ipc"
)

var systemBus bool

var rootCmd = &cobra.Command{
	Use:   "awctl",
	Short: "awctl is the command line tool for AttokWarden",
	Long: `awctl talks to the AttokWarden daemon over D-Bus.
Use it to confirm the board login, control polling, adjust class lengths
and list today's students.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&systemBus, "system", false, "talk to a daemon on the system bus")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// call invokes a Board method on the daemon and stores the reply in out.
func call(method string, out []interface{}, args ...interface{}) error {
	conn, err := ipc.Connect(systemBus)
	if err != nil {
		return err
	}
	defer conn.Close()

	obj := conn.Object(ipc.ServiceName, dbus.ObjectPath(ipc.ObjectPath))
	if err := obj.Call(ipc.InterfaceName+"."+method, 0, args...).Store(out...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}
