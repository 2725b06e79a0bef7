// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

/*
Package cvdmanager provides a Go library for managing cuttlefish virtual
device instances, local and remote.

# Overview

This library drives the full lifecycle of cuttlefish Android Virtual Devices:
launching a local instance from locally built images, discovering what is
currently running, and tearing instances down again. There is no state file
and no daemon — every listing reconstructs live instance state by scanning the
OS process table for launch_cvd processes and SSH forwarding tunnels.

# Quick Start

	import "github.com/forkbombeu/cvdctl/pkg/cvdmanager"

	func main() {
		mgr := cvdmanager.New()

		// Launch a local instance (blocks until boot completes)
		mgr.Create(cvdmanager.CreateOptions{
			Hardware: cvdmanager.HardwareSpec{
				CPUs: 2, XRes: 720, YRes: 1280, DPI: 320,
				MemoryMB: 2048, DiskMB: 4096,
			},
		})

		// Discover it again later, from process evidence alone
		inst, _ := mgr.LocalInstance()
		fmt.Println(inst.FullName)

		// Tear it down
		mgr.Delete()
	}

# Key Concepts

**Local instance**: a launch_cvd process on this machine. At most one can
exist; creating a second prompts to replace the first.

**Remote instance**: a cuttlefish device on a GCE VM, reached through SSH
local port forwarding. Listing correlates the provider's instance description
with tunnel processes found on this machine.

**Stateless discovery**: nothing is persisted between calls. An Instance
value is a snapshot derived from the process table at query time; call again
for fresh state.

# Environment Configuration

By default, the manager auto-detects paths from environment variables:
  - ANDROID_HOST_OUT (host package with launch_cvd and stop_cvd)
  - CVDCTL_LOCAL_IMAGE_DIR (falls back to ANDROID_PRODUCT_OUT)
  - CVDCTL_RUNTIME_DIR
  - CVDCTL_CORRELATION_ID

Use NewWithEnv() to override with custom paths.

# Thread Safety

Manager instances are not thread-safe, and the single-local-instance rule is
enforced procedurally (check, then prompt), not by a lock. Single-operator
usage is assumed.

# Requirements

  - Linux host (local instances are not supported elsewhere; discovery
    reports "none" rather than failing)
  - Locally built cuttlefish images and host package
  - ssh for remote instance tunnels

# License

AGPL-3.0-only

Copyright (C) 2025 Forkbomb B.V.
*/
package cvdmanager
