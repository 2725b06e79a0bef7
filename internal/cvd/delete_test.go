// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestStopCVDPathFromRunningProcess(t *testing.T) {
	d := NewLocalDeleter(Env{PS: "ps"})
	d.queryOutput = func(name string, args ...string) (string, error) {
		switch name {
		case "pgrep":
			return "1234\n", nil
		case "ps":
			return "/tmp/bin/launch_cvd --daemon --cpus 2\n", nil
		}
		t.Fatalf("unexpected query %s %v", name, args)
		return "", nil
	}
	d.fileExists = func(string) bool { return true }

	if got := d.stopCVDPath(); got != "/tmp/bin/stop_cvd" {
		t.Fatalf("stop path %q", got)
	}
}

func TestStopCVDPathNoProcess(t *testing.T) {
	d := NewLocalDeleter(Env{PS: "ps"})
	d.queryOutput = func(name string, args ...string) (string, error) {
		return "", errors.New("exit status 1")
	}
	if got := d.stopCVDPath(); got != "" {
		t.Fatalf("expected empty stop path, got %q", got)
	}
}

func TestDeleteWithoutRunningInstance(t *testing.T) {
	d := NewLocalDeleter(Env{PS: "ps"})
	d.queryOutput = func(name string, args ...string) (string, error) {
		return "", errors.New("exit status 1")
	}
	ran := false
	d.runQuiet = func(string) error { ran = true; return nil }

	report, err := d.Delete()
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ran {
		t.Fatal("no stop command should run when resolution is empty")
	}
	if report.Command != "delete" || report.Status != StatusSuccess {
		t.Fatalf("report %+v", report)
	}
	want := []map[string]any{{"type": "instance", "name": LocalInstanceName}}
	if !reflect.DeepEqual(report.Data["deleted"], want) {
		t.Fatalf("deleted data %#v", report.Data["deleted"])
	}
}

func TestDeleteStopsRunningInstance(t *testing.T) {
	d := NewLocalDeleter(Env{PS: "ps"})
	d.queryOutput = func(name string, args ...string) (string, error) {
		if name == "pgrep" {
			return "4321\n", nil
		}
		return "/opt/cf/bin/launch_cvd --daemon\n", nil
	}
	d.fileExists = func(string) bool { return true }
	var stopped string
	d.runQuiet = func(command string) error { stopped = command; return nil }

	report, err := d.Delete()
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(stopped, "/opt/cf/bin/stop_cvd") {
		t.Fatalf("stop command %q", stopped)
	}
	if !strings.Contains(stopped, "sg kvm") {
		t.Fatalf("expected group elevation in %q", stopped)
	}
	if report.Status != StatusSuccess {
		t.Fatalf("report %+v", report)
	}
}
