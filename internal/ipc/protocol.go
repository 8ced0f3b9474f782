package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/SoarinFerret/AttokWarden/internal/engine"
	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/session"
	"github.com/SoarinFerret/AttokWarden/internal/state"
)

const (
	ObjectPath    = "/io/github/soarinferret/attokwarden"
	InterfaceName = "io.github.soarinferret.attokwarden.Board"
	ServiceName   = "io.github.soarinferret.attokwarden"

	ErrorUnknownStudent = ServiceName + ".Error.UnknownStudent"
	ErrorDeparted       = ServiceName + ".Error.Departed"
	ErrorState          = ServiceName + ".Error.State"
	ErrorFailed         = ServiceName + ".Error.Failed"
)

// Controller is the engine surface exported on the bus.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	Reset()
	Adjust(name string, delta int) (session.Record, error)
	Status() engine.Status
	View() render.View
}

type VoiceToggler interface {
	Voice() bool
	ToggleVoice() bool
}

// StatusReply is the JSON returned by GetStatus.
type StatusReply struct {
	engine.Status
	Voice bool `json:"voice"`
}

// Board is exported at ObjectPath. Methods follow godbus conventions: the
// trailing *dbus.Error is the D-Bus error reply.
type Board struct {
	Engine Controller
	Voice  VoiceToggler
	// AdjustStep is the number of minutes Step moves a class by.
	AdjustStep int
	// Ctx bounds session (re)opening triggered over the bus.
	Ctx context.Context
}

func (b *Board) ctx() context.Context {
	if b.Ctx == nil {
		return context.Background()
	}
	return b.Ctx
}

func (b *Board) GetStatus() (string, *dbus.Error) {
	return marshal(StatusReply{Status: b.Engine.Status(), Voice: b.Voice.Voice()})
}

// Start is the confirm-logged-in operation.
func (b *Board) Start() *dbus.Error {
	return toDBusError(b.Engine.Start(b.ctx()))
}

func (b *Board) Stop() *dbus.Error {
	return toDBusError(b.Engine.Stop())
}

func (b *Board) Restart() *dbus.Error {
	return toDBusError(b.Engine.Restart(b.ctx()))
}

func (b *Board) Reset() *dbus.Error {
	b.Engine.Reset()
	return nil
}

func (b *Board) ToggleVoice() (bool, *dbus.Error) {
	return b.Voice.ToggleVoice(), nil
}

func (b *Board) Adjust(name string, delta int32) (string, *dbus.Error) {
	rec, err := b.Engine.Adjust(name, int(delta))
	if err != nil {
		return "", toDBusError(err)
	}
	return marshal(rec)
}

// Step lengthens (up) or shortens a class by AdjustStep minutes.
func (b *Board) Step(name string, up bool) (string, *dbus.Error) {
	step := b.AdjustStep
	if step <= 0 {
		step = 10
	}
	if !up {
		step = -step
	}
	return b.Adjust(name, int32(step))
}

// ListStudents returns the current view as JSON.
func (b *Board) ListStudents() (string, *dbus.Error) {
	return marshal(b.Engine.View())
}

func marshal(v any) (string, *dbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func toDBusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrUnknownStudent):
		return dbus.NewError(ErrorUnknownStudent, []any{err.Error()})
	case errors.Is(err, state.ErrDeparted):
		return dbus.NewError(ErrorDeparted, []any{err.Error()})
	case errors.Is(err, engine.ErrAlreadyRunning),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrSuspended):
		return dbus.NewError(ErrorState, []any{err.Error()})
	default:
		return dbus.NewError(ErrorFailed, []any{err.Error()})
	}
}

// Connect opens the system or session bus.
func Connect(system bool) (*dbus.Conn, error) {
	if system {
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to system bus: %w", err)
		}
		return conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return conn, nil
}

// Serve claims ServiceName, exports b and blocks until ctx is done.
func Serve(ctx context.Context, system bool, b *Board) error {
	conn, err := Connect(system)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("failed to request name: %s already owned", ServiceName)
	}

	if err := conn.Export(b, dbus.ObjectPath(ObjectPath), InterfaceName); err != nil {
		return fmt.Errorf("failed to export interface: %w", err)
	}

	<-ctx.Done()
	return nil
}
