// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// launchCmdPattern recognizes the launch_cvd process line in ps output.
// Everything before the first path separator is the lstart timestamp. Each
// hardware flag is its own optional group so a flag omitted at launch time
// does not abort the capture of the others.
var launchCmdPattern = regexp.MustCompile(
	`^(?P<createtime>[^/]+)(.*launch_cvd --daemon )+` +
		`((.*\s*-cpus\s)(?P<cpu>\d+))?` +
		`((.*\s*-x_res\s)(?P<x_res>\d+))?` +
		`((.*\s*-y_res\s)(?P<y_res>\d+))?` +
		`((.*\s*-dpi\s)(?P<dpi>\d+))?` +
		`((.*\s*-memory_mb\s)(?P<memory>\d+))?` +
		`((.*\s*-blank_data_image_mb\s)(?P<disk>\d+))?`)

// LaunchEvidence holds the fields extracted from a launch_cvd command line.
// Optional fields are empty strings when the flag was not on the command.
type LaunchEvidence struct {
	CreateTime string
	CPUs       string
	XRes       string
	YRes       string
	DPI        string
	MemoryMB   string
	DiskMB     string
}

// matchLaunchCommand applies the launch-command grammar to a single line.
func matchLaunchCommand(line string) (LaunchEvidence, bool) {
	m := launchCmdPattern.FindStringSubmatch(line)
	if m == nil {
		return LaunchEvidence{}, false
	}
	group := func(name string) string {
		return m[launchCmdPattern.SubexpIndex(name)]
	}
	ev := LaunchEvidence{
		CreateTime: strings.TrimSpace(group("createtime")),
		CPUs:       group("cpu"),
		XRes:       group("x_res"),
		YRes:       group("y_res"),
		DPI:        group("dpi"),
		MemoryMB:   group("memory"),
		DiskMB:     group("disk"),
	}
	return ev, true
}

// findLaunchEvidence scans the process table for the launch_cvd process.
// At most one local instance can exist, so the first match wins.
func findLaunchEvidence(lines []string) (LaunchEvidence, bool) {
	for _, line := range lines {
		if ev, ok := matchLaunchCommand(line); ok {
			return ev, true
		}
	}
	return LaunchEvidence{}, false
}

// ForwardedPorts holds the local ends of the two SSH forwards for a remote
// instance. Zero means the port was not found, i.e. no tunnel is up.
type ForwardedPorts struct {
	VNC int
	ADB int
}

// tunnelCmdPattern recognizes an ssh process forwarding both default remote
// ports for the given IP. The loopback address, both remote port literals and
// the IP are mandatory anchors so a tunnel for another instance never matches.
func tunnelCmdPattern(ip string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(
		`((.*\s*-L\s)(?P<vnc>\d+):127.0.0.1:%d)`+
			`((.*\s*-L\s)(?P<adb>\d+):127.0.0.1:%d)`+
			`(.+%s)`,
		DefaultVNCPort, DefaultADBPort, regexp.QuoteMeta(ip)))
}

// findTunnelPorts extracts the forwarded (vnc, adb) local ports for ip from
// the process table. Returns zero ports when no tunnel process references ip.
func findTunnelPorts(lines []string, ip string) ForwardedPorts {
	pattern := tunnelCmdPattern(ip)
	for _, line := range lines {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		vnc, _ := strconv.Atoi(m[pattern.SubexpIndex("vnc")])
		adb, _ := strconv.Atoi(m[pattern.SubexpIndex("adb")])
		return ForwardedPorts{VNC: vnc, ADB: adb}
	}
	return ForwardedPorts{}
}
