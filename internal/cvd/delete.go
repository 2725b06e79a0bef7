// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LocalDeleter tears down the local instance. The host package directory is
// re-derived from the running launch_cvd process's own path on every call,
// never read from stored configuration.
type LocalDeleter struct {
	env Env

	queryOutput func(name string, args ...string) (string, error)
	runQuiet    func(command string) error
	fileExists  func(path string) bool
}

func NewLocalDeleter(env Env) *LocalDeleter {
	return &LocalDeleter{
		env:         env,
		queryOutput: commandOutput,
		runQuiet:    runShellQuiet,
		fileExists:  fileExists,
	}
}

// Delete stops the local instance if a stop command can be resolved and
// reports the deletion. An unresolvable stop path is not a failure: the
// logical instance is gone either way.
func (d *LocalDeleter) Delete() (*Report, error) {
	_, span := startSpan(d.env, "cvd.DeleteLocal")
	defer span.End()

	if stopCmd := d.stopCVDPath(); stopCmd != "" {
		wrapped := addUserGroupsToCmd(stopCmd, cvdUserGroups)
		if err := d.runQuiet(wrapped); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		logEvent(d.env, "local instance stopped", "stop_cmd", stopCmd)
	}

	report := NewReport("delete")
	report.SetStatus(StatusSuccess)
	report.AddData("deleted", []map[string]any{
		{"type": "instance", "name": LocalInstanceName},
	})
	return report, nil
}

// stopCVDPath locates stop_cvd next to the running launch_cvd binary.
// Returns "" when no launch_cvd process is running or the binary path cannot
// be resolved.
func (d *LocalDeleter) stopCVDPath() string {
	pid, err := d.queryOutput("pgrep", CmdLaunchCVD)
	if err != nil {
		return ""
	}
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return ""
	}

	cmdline, err := d.queryOutput(d.env.PS, "-o", "cmd", "--no-headers", "-p", pid)
	if err != nil {
		return ""
	}
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return ""
	}

	stopCVD := filepath.Join(filepath.Dir(fields[0]), CmdStopCVD)
	if !d.fileExists(stopCVD) {
		return ""
	}
	return stopCVD
}

func commandOutput(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return string(out), err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
