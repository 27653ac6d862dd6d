// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package service

import (
	"context"
	"time"

	sysdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/clock"

	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

// DBusAPI is the narrow slice of the systemd dbus connection the controller
// needs. *dbus.Conn satisfies it; tests stub it.
type DBusAPI interface {
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]sysdbus.UnitStatus, error)
	Close()
}

// DBusAPIFactory opens a systemd dbus connection.
type DBusAPIFactory func(ctx context.Context) (DBusAPI, error)

// NewDBusAPI is the production factory.
var NewDBusAPI DBusAPIFactory = func(ctx context.Context) (DBusAPI, error) {
	return sysdbus.NewWithContext(ctx)
}

// Systemd controls one systemd unit.
type Systemd struct {
	unit    string
	newConn DBusAPIFactory
	clock   clock.Clock
	logger  *logging.Logger

	settleTimeout time.Duration
	pollInterval  time.Duration
}

// NewSystemd creates a Controller for the named unit.
func NewSystemd(unit string, newConn DBusAPIFactory, clk clock.Clock, logger *logging.Logger) *Systemd {
	if newConn == nil {
		newConn = NewDBusAPI
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Systemd{
		unit:          unit,
		newConn:       newConn,
		clock:         clk,
		logger:        logger,
		settleTimeout: StopSettleTimeout,
		pollInterval:  StopPollInterval,
	}
}

// IsActive implements Controller.
func (s *Systemd) IsActive(ctx context.Context) (bool, error) {
	conn, err := s.newConn(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.KindServiceControl, "cannot connect to systemd")
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{s.unit})
	if err != nil {
		return false, errors.Wrapf(err, errors.KindServiceControl, "cannot query unit %s", s.unit)
	}
	for _, u := range units {
		if u.Name == s.unit {
			return u.LoadState == "loaded" && u.ActiveState == "active", nil
		}
	}
	return false, nil
}

// Stop implements Controller.
func (s *Systemd) Stop(ctx context.Context) error {
	active, err := s.IsActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		s.logger.Warn("Service already inactive; stop is a no-op", "unit", s.unit)
		return nil
	}

	conn, err := s.newConn(ctx)
	if err != nil {
		return errors.Wrap(err, errors.KindServiceControl, "cannot connect to systemd")
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, s.unit, "fail", statusCh); err != nil {
		return errors.Wrapf(err, errors.KindServiceControl, "stop command rejected for %s", s.unit)
	}
	if status := <-statusCh; status != "done" {
		return errors.Errorf(errors.KindServiceControl, "stop of %s finished with status %q", s.unit, status)
	}

	if !s.WaitUntilStopped(ctx, s.settleTimeout) {
		return errors.Errorf(errors.KindTimeout,
			"service %s did not settle within %s after stop", s.unit, s.settleTimeout)
	}

	s.logger.Info("Service stopped", "unit", s.unit)
	return nil
}

// Start implements Controller.
func (s *Systemd) Start(ctx context.Context) error {
	conn, err := s.newConn(ctx)
	if err != nil {
		return errors.Wrap(err, errors.KindServiceControl, "cannot connect to systemd")
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, s.unit, "fail", statusCh); err != nil {
		return errors.Wrapf(err, errors.KindServiceControl, "start command rejected for %s", s.unit)
	}
	if status := <-statusCh; status != "done" {
		return errors.Errorf(errors.KindServiceControl, "start of %s finished with status %q", s.unit, status)
	}

	s.logger.Info("Service started", "unit", s.unit)
	return nil
}

// WaitUntilStopped implements Controller.
func (s *Systemd) WaitUntilStopped(ctx context.Context, timeout time.Duration) bool {
	deadline := s.clock.Now().Add(timeout)
	for {
		active, err := s.IsActive(ctx)
		if err == nil && !active {
			return true
		}
		if s.clock.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.clock.After(s.pollInterval):
		}
	}
}
