// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

// LocalInstanceName is the fixed identifier of the single local instance.
// launch_cvd supports at most one instance per host, so the name never varies.
const LocalInstanceName = "local-instance"

// Default ports launch_cvd binds on the device side. SSH tunnels for remote
// instances forward arbitrary local ports to exactly these remote ports.
const (
	DefaultVNCPort = 6444
	DefaultADBPort = 6520
)

const (
	// CmdLaunchCVD and CmdStopCVD are the host-package binaries that start
	// and stop a cuttlefish device.
	CmdLaunchCVD = "launch_cvd"
	CmdStopCVD   = "stop_cvd"
)

// StatusRunning is the status assigned to a discovered local instance.
// Remote instances carry whatever status the provider reports.
const StatusRunning = "RUNNING"

// TypeCuttlefish classifies the AVD type of local instances.
const TypeCuttlefish = "cuttlefish"

// Metadata keys recognized on remote instance descriptions.
const (
	MetaKeyDisplay   = "display"
	MetaKeyAVDType   = "avd_type"
	MetaKeyAVDFlavor = "flavor"
)

// cvdUserGroups are the groups launch_cvd/stop_cvd must run under.
var cvdUserGroups = []string{"kvm", "cvdnetwork"}
