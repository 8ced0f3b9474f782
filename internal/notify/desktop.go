package notify

import (
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

// DesktopSink shows notifications through org.freedesktop.Notifications on
// the user's session bus.
type DesktopSink struct {
	// Address of the session bus; resolved on first use when empty.
	Address string

	mu   sync.Mutex
	conn *dbus.Conn
}

func (d *DesktopSink) Beep(int, int) error { return nil }
func (d *DesktopSink) Speak(string) error  { return nil }

// Log pops up text as a desktop notification.
func (d *DesktopSink) Log(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect()
	if err != nil {
		return err
	}

	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"AttokWarden", uint32(0), "dialog-information",
		"출결 알림", text,
		[]string{},
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)), // normal
		},
		int32(10000), // expire_timeout
	)
	if call.Err != nil {
		// reconnect next time
		d.conn.Close()
		d.conn = nil
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

func (d *DesktopSink) connect() (*dbus.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	addr := d.Address
	if addr == "" {
		var err error
		if addr, err = SessionBusAddress(); err != nil {
			return nil, err
		}
	}

	conn, err := dbus.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}
	d.conn = conn
	return conn, nil
}

func (d *DesktopSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// SessionBusAddress finds the session bus from the environment, falling back
// to the parent process when started from a service manager that strips it.
func SessionBusAddress() (string, error) {
	if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
		return addr, nil
	}
	addr, err := procEnv(os.Getppid(), "DBUS_SESSION_BUS_ADDRESS")
	if err != nil {
		return "", fmt.Errorf("no session bus address: %w", err)
	}
	return addr, nil
}
