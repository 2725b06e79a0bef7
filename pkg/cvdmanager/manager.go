// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package cvdmanager provides a Go library for managing cuttlefish virtual
// device instances, local and remote.
package cvdmanager

import (
	"context"

	"github.com/forkbombeu/cvdctl/internal/cvd"
	"github.com/forkbombeu/cvdctl/internal/gce"
)

// Manager provides high-level instance lifecycle operations.
type Manager struct {
	env cvd.Env
}

// New creates a new Manager with auto-detected environment.
func New() *Manager {
	return &Manager{
		env: cvd.Detect(),
	}
}

// NewWithCorrelationID creates a new Manager with a correlation ID for structured logs.
func NewWithCorrelationID(correlationID string) *Manager {
	return NewWithContextAndCorrelationID(context.Background(), correlationID)
}

// NewWithContext creates a new Manager with a custom context for tracing.
func NewWithContext(ctx context.Context) *Manager {
	return NewWithContextAndCorrelationID(ctx, "")
}

// NewWithContextAndCorrelationID creates a new Manager with a custom context and correlation ID.
func NewWithContextAndCorrelationID(ctx context.Context, correlationID string) *Manager {
	env := cvd.Detect()
	if ctx == nil {
		ctx = context.Background()
	}
	env.Context = ctx
	env.CorrelationID = correlationID
	return &Manager{
		env: env,
	}
}

// NewWithEnv creates a new Manager with custom environment configuration.
func NewWithEnv(env Environment) *Manager {
	ctx := env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		env: cvd.Env{
			HostOut:       env.HostOut,
			LocalImageDir: env.LocalImageDir,
			RuntimeDir:    env.RuntimeDir,
			PS:            env.PSBin,
			SSH:           env.SSHBin,
			CorrelationID: env.CorrelationID,
			Context:       ctx,
		},
	}
}

// Environment holds configuration for tools and paths.
type Environment struct {
	HostOut       string          // ANDROID_HOST_OUT (launch_cvd/stop_cvd under bin/)
	LocalImageDir string          // Directory holding the device images
	RuntimeDir    string          // Cuttlefish runtime dir (launcher.log lives here)
	PSBin         string          // Path to ps binary (default: "ps")
	SSHBin        string          // Path to ssh binary (default: "ssh")
	CorrelationID string          // Correlation ID for log enrichment
	Context       context.Context // Context for tracing
}

// InstanceInfo describes one discovered instance.
type InstanceInfo struct {
	Name               string // Instance name (fixed "local-instance" for local)
	FullName           string // Display name with reachable endpoint
	Status             string // RUNNING, or provider-reported state
	Display            string // Resolution and dpi, e.g. "720x1280 (320)"
	IP                 string // Loopback for local, external address for remote
	AdbPort            int    // Forwarded adb port, 0 when not connected
	VncPort            int    // Forwarded vnc port, 0 when not connected
	SSHTunnelConnected bool   // True when a forwarding tunnel was found
	CreateTime         string // Process/provider-reported creation timestamp
	AvdType            string // Device type classification
	AvdFlavor          string // Device flavor classification
	IsLocal            bool   // Local vs remote variant
}

// HardwareSpec holds the hardware parameters of a new local instance.
type HardwareSpec struct {
	CPUs     int // CPU count
	XRes     int // Horizontal resolution
	YRes     int // Vertical resolution
	DPI      int // Screen density
	MemoryMB int // RAM in MB
	DiskMB   int // Blank data disk size in MB
}

// CreateOptions configures local instance creation.
type CreateOptions struct {
	Hardware      HardwareSpec
	LocalImageDir string // Overrides the environment's image dir when set
	AutoConnect   bool   // Request display-client connection details in the report
}

// Result is the structured outcome of a lifecycle command.
type Result struct {
	Command string         // Command name, e.g. "create"
	Status  string         // SUCCESS or FAIL
	Data    map[string]any // Free-form result mapping
}

// ErrCanceled is reported by Create when the operator declines the relaunch
// prompt. Not a failure.
type ErrCanceled struct{}

func (ErrCanceled) Error() string { return "creation canceled by user" }

// LocalInstance discovers the currently running local instance.
// Returns (nil, nil) when none is running.
func (m *Manager) LocalInstance() (*InstanceInfo, error) {
	inst, err := cvd.LocalInstance(m.env)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, nil
	}
	info := instanceInfo(inst)
	return &info, nil
}

// RemoteInstances lists cuttlefish host instances in the given GCE project
// and zone, correlating each with any live SSH tunnel on this machine.
func (m *Manager) RemoteInstances(ctx context.Context, project, zone string) ([]InstanceInfo, error) {
	client, err := gce.NewClient(ctx, gce.WithProject(project), gce.WithZone(zone))
	if err != nil {
		return nil, err
	}
	descs, err := client.List(ctx, gce.InstanceFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]InstanceInfo, 0, len(descs))
	for _, desc := range descs {
		inst, err := cvd.RemoteInstance(m.env, desc)
		if err != nil {
			return nil, err
		}
		out = append(out, instanceInfo(inst))
	}
	return out, nil
}

// Create launches a new local instance and blocks until it has booted.
// Returns ErrCanceled when the operator declines to replace a running one.
func (m *Manager) Create(opts CreateOptions) (*Result, error) {
	creator := cvd.NewLocalCreator(m.env)
	report, err := creator.Create(cvd.CreateOptions{
		Hardware: cvd.HardwareSpec{
			CPUs:     opts.Hardware.CPUs,
			XRes:     opts.Hardware.XRes,
			YRes:     opts.Hardware.YRes,
			DPI:      opts.Hardware.DPI,
			MemoryMB: opts.Hardware.MemoryMB,
			DiskMB:   opts.Hardware.DiskMB,
		},
		LocalImageDir: opts.LocalImageDir,
		AutoConnect:   opts.AutoConnect,
	})
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrCanceled{}
	}
	return result(report), nil
}

// Delete stops and removes the local instance.
func (m *Manager) Delete() (*Result, error) {
	report, err := cvd.NewLocalDeleter(m.env).Delete()
	if err != nil {
		return nil, err
	}
	return result(report), nil
}

func instanceInfo(inst *cvd.Instance) InstanceInfo {
	return InstanceInfo{
		Name:               inst.Name,
		FullName:           inst.FullName,
		Status:             inst.Status,
		Display:            inst.Display,
		IP:                 inst.IP,
		AdbPort:            inst.AdbPort,
		VncPort:            inst.VncPort,
		SSHTunnelConnected: inst.SSHTunnelConnected,
		CreateTime:         inst.CreateTime,
		AvdType:            inst.AvdType,
		AvdFlavor:          inst.AvdFlavor,
		IsLocal:            inst.IsLocal,
	}
}

func result(report *cvd.Report) *Result {
	return &Result{
		Command: report.Command,
		Status:  string(report.Status),
		Data:    report.Data,
	}
}
