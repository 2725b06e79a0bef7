// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"fmt"
	"testing"
)

const launchLine = "Mon Jan 1 00:00:00 2024 /tmp/bin/launch_cvd --daemon " +
	"--cpus 2 --x_res 720 --y_res 1280 --dpi 320 " +
	"--memory_mb 2048 --blank_data_image_mb 4096 " +
	"--data_policy always_create --system_image_dir /tmp/img --vnc_server_port 6444"

func TestMatchLaunchCommandAllFields(t *testing.T) {
	ev, ok := matchLaunchCommand(launchLine)
	if !ok {
		t.Fatal("expected launch line to match")
	}
	if ev.CreateTime != "Mon Jan 1 00:00:00 2024" {
		t.Fatalf("create time %q", ev.CreateTime)
	}
	if ev.CPUs != "2" || ev.XRes != "720" || ev.YRes != "1280" || ev.DPI != "320" {
		t.Fatalf("hardware fields %+v", ev)
	}
	if ev.MemoryMB != "2048" || ev.DiskMB != "4096" {
		t.Fatalf("memory/disk fields %+v", ev)
	}
}

func TestMatchLaunchCommandOptionalFields(t *testing.T) {
	cases := []struct {
		name  string
		flags string
		check func(ev LaunchEvidence) bool
	}{
		{"no flags", "", func(ev LaunchEvidence) bool {
			return ev.CPUs == "" && ev.XRes == "" && ev.MemoryMB == ""
		}},
		{"cpus only", "--cpus 4", func(ev LaunchEvidence) bool {
			return ev.CPUs == "4" && ev.XRes == ""
		}},
		{"resolution only", "--x_res 1080 --y_res 1920", func(ev LaunchEvidence) bool {
			return ev.CPUs == "" && ev.XRes == "1080" && ev.YRes == "1920"
		}},
		{"dpi and memory", "--dpi 160 --memory_mb 1024", func(ev LaunchEvidence) bool {
			return ev.DPI == "160" && ev.MemoryMB == "1024" && ev.DiskMB == ""
		}},
		{"disk only", "--blank_data_image_mb 2048", func(ev LaunchEvidence) bool {
			return ev.DiskMB == "2048" && ev.CPUs == ""
		}},
	}
	for _, tc := range cases {
		line := "Tue Feb 2 10:30:00 2024 /tmp/bin/launch_cvd --daemon " + tc.flags
		ev, ok := matchLaunchCommand(line)
		if !ok {
			t.Fatalf("%s: expected match", tc.name)
		}
		if ev.CreateTime != "Tue Feb 2 10:30:00 2024" {
			t.Fatalf("%s: create time %q", tc.name, ev.CreateTime)
		}
		if !tc.check(ev) {
			t.Fatalf("%s: unexpected evidence %+v", tc.name, ev)
		}
	}
}

func TestMatchLaunchCommandRejectsOtherProcesses(t *testing.T) {
	lines := []string{
		"Mon Jan 1 00:00:00 2024 /usr/bin/sshd -D",
		"Mon Jan 1 00:00:00 2024 /usr/lib/systemd/systemd --user",
		"Mon Jan 1 00:00:00 2024 grep launch_cvd",
	}
	for _, line := range lines {
		if _, ok := matchLaunchCommand(line); ok {
			t.Fatalf("unexpected match for %q", line)
		}
	}
}

func TestFindLaunchEvidenceFirstMatchWins(t *testing.T) {
	lines := []string{
		"Mon Jan 1 00:00:00 2024 /usr/bin/bash",
		"Mon Jan 1 00:00:00 2024 /tmp/bin/launch_cvd --daemon --cpus 2",
		"Mon Jan 1 00:00:01 2024 /tmp/bin/launch_cvd --daemon --cpus 8",
	}
	ev, ok := findLaunchEvidence(lines)
	if !ok {
		t.Fatal("expected a match")
	}
	if ev.CPUs != "2" {
		t.Fatalf("expected first match, got cpus=%s", ev.CPUs)
	}
}

func TestFindTunnelPorts(t *testing.T) {
	line := fmt.Sprintf("Sat Nov 10 21:55:10 2018 /usr/bin/ssh -i ~/.ssh/key "+
		"-L 6444:127.0.0.1:%d -L 6520:127.0.0.1:%d -N -f -l vsoc-01 35.1.2.3",
		DefaultVNCPort, DefaultADBPort)

	ports := findTunnelPorts([]string{line}, "35.1.2.3")
	if ports.VNC != 6444 || ports.ADB != 6520 {
		t.Fatalf("ports %+v", ports)
	}
}

func TestFindTunnelPortsNonDefaultLocalPorts(t *testing.T) {
	line := fmt.Sprintf("Sat Nov 10 21:55:10 2018 /usr/bin/ssh "+
		"-L 55555:127.0.0.1:%d -L 44444:127.0.0.1:%d -N -f -l vsoc-01 10.0.0.9",
		DefaultVNCPort, DefaultADBPort)

	ports := findTunnelPorts([]string{line}, "10.0.0.9")
	if ports.VNC != 55555 || ports.ADB != 44444 {
		t.Fatalf("ports %+v", ports)
	}
}

func TestFindTunnelPortsAnchoredOnIP(t *testing.T) {
	line := fmt.Sprintf("Sat Nov 10 21:55:10 2018 /usr/bin/ssh "+
		"-L 6444:127.0.0.1:%d -L 6520:127.0.0.1:%d -N -f -l vsoc-01 35.1.2.3",
		DefaultVNCPort, DefaultADBPort)

	ports := findTunnelPorts([]string{line}, "35.9.9.9")
	if ports.VNC != 0 || ports.ADB != 0 {
		t.Fatalf("tunnel for another IP matched: %+v", ports)
	}
}

func TestFindTunnelPortsAnchoredOnRemotePorts(t *testing.T) {
	// Same shape, but forwarding to some other service's ports.
	line := "Sat Nov 10 21:55:10 2018 /usr/bin/ssh " +
		"-L 8080:127.0.0.1:80 -L 8443:127.0.0.1:443 -N -f -l www 35.1.2.3"

	ports := findTunnelPorts([]string{line}, "35.1.2.3")
	if ports.VNC != 0 || ports.ADB != 0 {
		t.Fatalf("tunnel with wrong remote ports matched: %+v", ports)
	}
}
