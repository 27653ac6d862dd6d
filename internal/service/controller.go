// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package service abstracts start/stop/status operations against the managed
// systemd unit. The orchestrator only sees the Controller interface; the
// systemd specifics stay behind it so the state machine is testable without a
// live service manager.
package service

import (
	"context"
	"time"

	"github.com/kestrelworks/kestrelup/internal/logging"
)

const (
	// StopSettleTimeout is the ceiling for a stopped unit to settle.
	StopSettleTimeout = 30 * time.Second
	// StopPollInterval is the interval between activity polls while waiting
	// for a stop to settle.
	StopPollInterval = 1 * time.Second
)

// Controller drives the managed service.
type Controller interface {
	// Stop halts the service. Stopping an already-inactive service is a
	// no-op success. A stop that does not settle within the ceiling is a
	// failure distinct from a rejected stop command.
	Stop(ctx context.Context) error

	// Start launches the service. Success is the command's own result;
	// post-start readiness is the health prober's concern.
	Start(ctx context.Context) error

	// IsActive reports whether the service is currently active.
	IsActive(ctx context.Context) (bool, error)

	// WaitUntilStopped polls until the service is inactive or the timeout
	// elapses, reporting whether it settled.
	WaitUntilStopped(ctx context.Context, timeout time.Duration) bool
}

// DryRun is a Controller that logs intent and mutates nothing. It tracks the
// state transitions it pretends to perform so a dry run reports a coherent
// sequence.
type DryRun struct {
	logger *logging.Logger
	active bool
}

// NewDryRun returns a dry-run controller that believes the service is
// currently active.
func NewDryRun(logger *logging.Logger) *DryRun {
	return &DryRun{logger: logger, active: true}
}

// Stop implements Controller.
func (d *DryRun) Stop(ctx context.Context) error {
	d.logger.Info("Dry-run: would stop service")
	d.active = false
	return nil
}

// Start implements Controller.
func (d *DryRun) Start(ctx context.Context) error {
	d.logger.Info("Dry-run: would start service")
	d.active = true
	return nil
}

// IsActive implements Controller.
func (d *DryRun) IsActive(ctx context.Context) (bool, error) {
	return d.active, nil
}

// WaitUntilStopped implements Controller.
func (d *DryRun) WaitUntilStopped(ctx context.Context, timeout time.Duration) bool {
	return true
}
