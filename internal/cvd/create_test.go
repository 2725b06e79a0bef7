// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
)

func newCreateTestEnv(t *testing.T) Env {
	t.Helper()
	root := t.TempDir()

	imageDir := filepath.Join(root, "img")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		t.Fatalf("mkdir image dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(imageDir, "system.img"), []byte("img"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	hostBin := filepath.Join(root, "host", "bin")
	if err := os.MkdirAll(hostBin, 0o755); err != nil {
		t.Fatalf("mkdir host bin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hostBin, CmdLaunchCVD), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write launch_cvd: %v", err)
	}

	return Env{
		HostOut:       filepath.Join(root, "host"),
		LocalImageDir: imageDir,
		RuntimeDir:    filepath.Join(root, "runtime"),
	}
}

type createRecorder struct {
	commands []string
}

func newTestCreator(env Env, rec *createRecorder) *LocalCreator {
	c := NewLocalCreator(env)
	c.out = io.Discard
	c.runCommand = func(command string) ([]byte, error) {
		rec.commands = append(rec.commands, command)
		return nil, nil
	}
	c.runQuiet = func(command string) error {
		rec.commands = append(rec.commands, command)
		return nil
	}
	c.discover = func(Env) (*Instance, error) { return nil, nil }
	c.confirm = func(string) bool { return false }
	return c
}

func TestCreateSuccessReport(t *testing.T) {
	env := newCreateTestEnv(t)
	rec := &createRecorder{}
	c := newTestCreator(env, rec)

	report, err := c.Create(CreateOptions{Hardware: HardwareSpec{
		CPUs: 2, XRes: 720, YRes: 1280, DPI: 320, MemoryMB: 2048, DiskMB: 4096,
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report == nil {
		t.Fatal("expected a report")
	}
	if report.Status != StatusSuccess || report.Command != "create" {
		t.Fatalf("report %+v", report)
	}
	devices, ok := report.Data["devices"].(map[string]any)
	if !ok {
		t.Fatalf("devices data %#v", report.Data["devices"])
	}
	if devices["adb_port"] != DefaultADBPort || devices["vnc_port"] != DefaultVNCPort {
		t.Fatalf("device ports %#v", devices)
	}

	if len(rec.commands) != 1 {
		t.Fatalf("expected one launch command, got %d", len(rec.commands))
	}
	if !strings.Contains(rec.commands[0], "launch_cvd --daemon --cpus 2") {
		t.Fatalf("launch command %q", rec.commands[0])
	}
	if !strings.Contains(rec.commands[0], "sg kvm") {
		t.Fatalf("expected group elevation in %q", rec.commands[0])
	}
}

func TestCreateMissingImageDir(t *testing.T) {
	env := newCreateTestEnv(t)
	env.LocalImageDir = filepath.Join(env.LocalImageDir, "nope")
	rec := &createRecorder{}
	c := newTestCreator(env, rec)

	_, err := c.Create(CreateOptions{})
	var missing *MissingArtifactsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingArtifactsError, got %v", err)
	}
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
	if len(rec.commands) != 0 {
		t.Fatalf("no subprocess may run before the artifact gate: %v", rec.commands)
	}
}

func TestCreateMissingLaunchPackage(t *testing.T) {
	env := newCreateTestEnv(t)
	if err := os.Remove(filepath.Join(env.HostOut, "bin", CmdLaunchCVD)); err != nil {
		t.Fatalf("remove launch_cvd: %v", err)
	}
	rec := &createRecorder{}
	c := newTestCreator(env, rec)

	_, err := c.Create(CreateOptions{})
	var missing *MissingArtifactsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingArtifactsError, got %v", err)
	}
	if !strings.Contains(missing.Hint, "m launch_cvd") {
		t.Fatalf("hint %q should name the build target", missing.Hint)
	}
	if len(rec.commands) != 0 {
		t.Fatalf("no subprocess may run before the artifact gate: %v", rec.commands)
	}
}

func TestCreateConflictDeclined(t *testing.T) {
	env := newCreateTestEnv(t)
	rec := &createRecorder{}
	c := newTestCreator(env, rec)
	c.discover = func(Env) (*Instance, error) {
		return localInstanceFromLines([]string{launchLine}), nil
	}
	prompted := false
	c.confirm = func(string) bool { prompted = true; return false }

	report, err := c.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("declining must not be an error: %v", err)
	}
	if report != nil {
		t.Fatal("declining must not produce a report")
	}
	if !prompted {
		t.Fatal("expected the conflict prompt")
	}
	if len(rec.commands) != 0 {
		t.Fatalf("no command may run after decline: %v", rec.commands)
	}
}

func TestCreateConflictAcceptedStopsThenLaunches(t *testing.T) {
	env := newCreateTestEnv(t)
	rec := &createRecorder{}
	c := newTestCreator(env, rec)
	c.discover = func(Env) (*Instance, error) {
		return localInstanceFromLines([]string{launchLine}), nil
	}
	c.confirm = func(string) bool { return true }

	report, err := c.Create(CreateOptions{Hardware: HardwareSpec{CPUs: 2}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report == nil || report.Status != StatusSuccess {
		t.Fatalf("report %+v", report)
	}
	if len(rec.commands) != 2 {
		t.Fatalf("expected stop then launch, got %v", rec.commands)
	}
	if !strings.Contains(rec.commands[0], CmdStopCVD) {
		t.Fatalf("first command must stop, got %q", rec.commands[0])
	}
	if !strings.Contains(rec.commands[1], CmdLaunchCVD) {
		t.Fatalf("second command must launch, got %q", rec.commands[1])
	}
}

func TestCreateLaunchFailure(t *testing.T) {
	env := newCreateTestEnv(t)
	rec := &createRecorder{}
	c := newTestCreator(env, rec)
	c.runCommand = func(command string) ([]byte, error) {
		return []byte("boot failed: no kvm"), errors.New("exit status 1")
	}

	_, err := c.Create(CreateOptions{})
	var launchErr *LaunchFailureError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchFailureError, got %v", err)
	}
	if !strings.Contains(launchErr.Output, "no kvm") {
		t.Fatalf("output %q", launchErr.Output)
	}
	if !strings.Contains(launchErr.Error(), "launcher.log") {
		t.Fatalf("error should hint at the runtime log: %v", launchErr)
	}
	if !errdefs.IsInternal(err) {
		t.Fatalf("expected internal classification, got %v", err)
	}
}

func TestPrepareLaunchCommandMatchesDiscoveryGrammar(t *testing.T) {
	cmd := prepareLaunchCommand("/tmp/bin/launch_cvd", HardwareSpec{
		CPUs: 2, XRes: 720, YRes: 1280, DPI: 320, MemoryMB: 2048, DiskMB: 4096,
	}, "/tmp/img")

	// The launch_cvd line inside the sg wrapper is what ps will show later;
	// discovery must be able to parse it back out.
	var launched string
	for _, line := range strings.Split(cmd, "\n") {
		if strings.Contains(line, CmdLaunchCVD) {
			launched = line
			break
		}
	}
	if launched == "" {
		t.Fatalf("no launch line in %q", cmd)
	}
	ev, ok := matchLaunchCommand("Mon Jan 1 00:00:00 2024 " + launched)
	if !ok {
		t.Fatalf("prepared command does not match the launch grammar: %q", launched)
	}
	if ev.CPUs != "2" || ev.XRes != "720" || ev.YRes != "1280" ||
		ev.DPI != "320" || ev.MemoryMB != "2048" || ev.DiskMB != "4096" {
		t.Fatalf("round-tripped evidence %+v", ev)
	}
}

func TestAddUserGroupsToCmd(t *testing.T) {
	wrapped := addUserGroupsToCmd("echo hi", []string{"kvm", "cvdnetwork"})
	if !strings.HasPrefix(wrapped, "sg kvm <<EOF") {
		t.Fatalf("wrapped %q", wrapped)
	}
	if !strings.Contains(wrapped, "sg cvdnetwork <<EOF") {
		t.Fatalf("wrapped %q", wrapped)
	}
	if !strings.Contains(wrapped, "echo hi") {
		t.Fatalf("wrapped %q", wrapped)
	}
	if got := addUserGroupsToCmd("echo hi", nil); got != "echo hi" {
		t.Fatalf("no groups should be a no-op, got %q", got)
	}
}
