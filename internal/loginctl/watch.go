package loginctl

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// SleepHandler reacts to system suspend and resume.
type SleepHandler interface {
	HandleSleep()
	HandleWake()
}

// Watch follows logind's PrepareForSleep signal until ctx is done.
func Watch(ctx context.Context, h SleepHandler, log *zap.Logger) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/login1"),
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return fmt.Errorf("add match failed: %w", err)
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	defer conn.RemoveSignal(c)

	for {
		select {
		case sig, ok := <-c:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			dispatch(sig, h, log)
		case <-ctx.Done():
			return nil
		}
	}
}

func dispatch(sig *dbus.Signal, h SleepHandler, log *zap.Logger) {
	if sig == nil || sig.Name != "org.freedesktop.login1.Manager.PrepareForSleep" || len(sig.Body) == 0 {
		return
	}
	sleeping, ok := sig.Body[0].(bool)
	if !ok {
		log.Warn("PrepareForSleep: unexpected body", zap.Any("body", sig.Body))
		return
	}
	if sleeping {
		log.Info("system is going to sleep")
		h.HandleSleep()
	} else {
		log.Info("system has woken up")
		h.HandleWake()
	}
}
