package dbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/dooshek/murmur/internal/session"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	dbusServiceName = "com.dooshek.murmur"
	dbusObjectPath  = "/com/dooshek/murmur/Session"
	dbusInterface   = "com.dooshek.murmur.Session"
)

// Controller is the part of session.Controller the service drives.
type Controller interface {
	Start() error
	Stop() error
	Toggle() (session.State, error)
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

type StatsSource interface {
	GetStatsJSON() (string, error)
}

type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Server exposes session control on the session bus and mirrors session
// changes as signals.
type Server struct {
	conn   *dbus.Conn
	obj    *sessionObject
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// sessionObject carries the exported D-Bus methods.
type sessionObject struct {
	ctrl  Controller
	stats StatsSource
	emit  emitter
}

// NewServer creates a D-Bus server for ctrl. stats may be nil.
func NewServer(ctrl Controller, stats StatsSource) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		obj:    &sessionObject{ctrl: ctrl, stats: stats},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects to the session bus, claims the service name and starts
// emitting signals.
func (s *Server) Start() error {
	var err error
	s.conn, err = dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := s.conn.RequestName(dbusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.conn.Close()
		return fmt.Errorf("name already taken")
	}

	s.obj.emit = s.conn
	err = s.conn.Export(s.obj, dbusObjectPath, dbusInterface)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	err = s.conn.Export(introspect.NewIntrospectable(introspectNode()), dbusObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	updates, unsubscribe := s.obj.ctrl.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		s.obj.watch(s.ctx, updates)
	}()

	logger.Infof("🔌 D-Bus service started: %s", dbusServiceName)
	return nil
}

// Stop stops emitting signals and closes the connection
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
	if s.conn != nil {
		s.conn.Close()
	}
	logger.Infof("🔌 D-Bus service stopped")
}

func introspectNode() *introspect.Node {
	return &introspect.Node{
		Name: dbusObjectPath,
		Interfaces: []introspect.Interface{{
			Name: dbusInterface,
			Methods: []introspect.Method{
				{Name: "Start"},
				{Name: "Stop"},
				{
					Name: "Toggle",
					Args: []introspect.Arg{
						{Name: "state", Type: "s", Direction: "out"},
					},
				},
				{
					Name: "GetStatus",
					Args: []introspect.Arg{
						{Name: "state", Type: "s", Direction: "out"},
						{Name: "status", Type: "s", Direction: "out"},
						{Name: "risk", Type: "d", Direction: "out"},
					},
				},
				{
					Name: "GetSnapshot",
					Args: []introspect.Arg{
						{Name: "snapshot_json", Type: "s", Direction: "out"},
					},
				},
				{
					Name: "GetStats",
					Args: []introspect.Arg{
						{Name: "stats_json", Type: "s", Direction: "out"},
					},
				},
			},
			Signals: []introspect.Signal{
				{
					Name: "StateChanged",
					Args: []introspect.Arg{
						{Name: "state", Type: "s"},
						{Name: "status", Type: "s"},
					},
				},
				{
					Name: "RiskUpdated",
					Args: []introspect.Arg{
						{Name: "risk", Type: "d"},
						{Name: "band", Type: "s"},
					},
				},
				{
					Name: "AlertFired",
					Args: []introspect.Arg{
						{Name: "risk", Type: "d"},
						{Name: "label", Type: "s"},
					},
				},
			},
		}},
	}
}

// Start starts a listening session (D-Bus method)
func (o *sessionObject) Start() *dbus.Error {
	logger.Debugf("D-Bus: Start called")
	if err := o.ctrl.Start(); err != nil {
		logger.Errorf("D-Bus: Error starting session", err)
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Stop stops the listening session (D-Bus method)
func (o *sessionObject) Stop() *dbus.Error {
	logger.Debugf("D-Bus: Stop called")
	if err := o.ctrl.Stop(); err != nil {
		logger.Errorf("D-Bus: Error stopping session", err)
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Toggle starts or stops the session and returns the new state (D-Bus method)
func (o *sessionObject) Toggle() (string, *dbus.Error) {
	logger.Debugf("D-Bus: Toggle called")
	state, err := o.ctrl.Toggle()
	if err != nil {
		logger.Errorf("D-Bus: Error toggling session", err)
		return state.String(), dbus.MakeFailedError(err)
	}
	return state.String(), nil
}

// GetStatus returns the session state, status line and risk (D-Bus method)
func (o *sessionObject) GetStatus() (string, string, float64, *dbus.Error) {
	snap := o.ctrl.Snapshot()
	return snap.State.String(), snap.Status, snap.Risk, nil
}

// GetSnapshot returns the full session snapshot as JSON (D-Bus method)
func (o *sessionObject) GetSnapshot() (string, *dbus.Error) {
	data, err := json.Marshal(o.ctrl.Snapshot())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetStats returns session statistics as JSON (D-Bus method)
func (o *sessionObject) GetStats() (string, *dbus.Error) {
	if o.stats == nil {
		return "{}", nil
	}
	js, err := o.stats.GetStatsJSON()
	if err != nil {
		logger.Errorf("D-Bus: Error reading stats", err)
		return "", dbus.MakeFailedError(err)
	}
	return js, nil
}

type signal struct {
	name string
	args []interface{}
}

// signalsFor returns the signals describing the change from prev to cur.
func signalsFor(prev, cur session.Snapshot) []signal {
	var out []signal
	if prev.State != cur.State || prev.Status != cur.Status {
		out = append(out, signal{"StateChanged", []interface{}{cur.State.String(), cur.Status}})
	}
	if prev.Risk != cur.Risk || prev.Band != cur.Band {
		out = append(out, signal{"RiskUpdated", []interface{}{cur.Risk, string(cur.Band)}})
	}
	if cur.AlertCount > prev.AlertCount {
		out = append(out, signal{"AlertFired", []interface{}{cur.Risk, cur.LastEvent}})
	}
	return out
}

func (o *sessionObject) watch(ctx context.Context, updates <-chan session.Snapshot) {
	var prev session.Snapshot
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if first {
				prev, first = snap, false
				continue
			}
			for _, sig := range signalsFor(prev, snap) {
				o.emitSignal(sig.name, sig.args...)
			}
			prev = snap
		}
	}
}

func (o *sessionObject) emitSignal(name string, args ...interface{}) {
	if o.emit == nil {
		logger.Warnf("D-Bus: Cannot emit signal %s - no connection", name)
		return
	}

	signalName := dbusInterface + "." + name
	if err := o.emit.Emit(dbus.ObjectPath(dbusObjectPath), signalName, args...); err != nil {
		logger.Errorf("D-Bus: Failed to emit signal %s", err, name)
		return
	}
	logger.Debugf("D-Bus: Emitted signal: %s", name)
}
