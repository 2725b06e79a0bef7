// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// HardwareSpec holds the hardware parameters passed to launch_cvd.
type HardwareSpec struct {
	CPUs     int
	XRes     int
	YRes     int
	DPI      int
	MemoryMB int
	DiskMB   int
}

// CreateOptions configures local instance creation.
type CreateOptions struct {
	Hardware      HardwareSpec
	LocalImageDir string // overrides Env.LocalImageDir when set
	AutoConnect   bool
}

const confirmRelaunch = "\nCuttlefish device is already running.\n" +
	"Enter 'y' to terminate the current instance and launch a new one, " +
	"anything else to exit out [y]: "

const disclaimer = "(Disclaimer: local cuttlefish instances are not a fully supported\n" +
	"runtime configuration, fixing breakages is on a best effort SLO.)\n"

// LocalCreator drives the local create state machine: verify artifacts,
// build the launch command, resolve conflicts, launch, report.
type LocalCreator struct {
	env Env

	// Seams for tests. Defaults run the real thing.
	runCommand func(command string) ([]byte, error)
	runQuiet   func(command string) error
	confirm    func(prompt string) bool
	discover   func(env Env) (*Instance, error)
	out        io.Writer
}

func NewLocalCreator(env Env) *LocalCreator {
	return &LocalCreator{
		env:        env,
		runCommand: runShell,
		runQuiet:   runShellQuiet,
		confirm:    promptYes,
		discover:   LocalInstance,
		out:        os.Stderr,
	}
}

// Create runs the whole create flow and returns the creation report.
// A (nil, nil) return means the operator declined the relaunch prompt:
// user-requested cancellation, not a failure, and no report is produced.
func (c *LocalCreator) Create(opts CreateOptions) (*Report, error) {
	_, span := startSpan(c.env, "cvd.CreateLocal",
		attribute.Int("cpus", opts.Hardware.CPUs),
		attribute.Int("memory_mb", opts.Hardware.MemoryMB))
	defer span.End()

	fmt.Fprint(c.out, disclaimer)

	imageDir, launchBin, err := c.imageArtifactsPath(opts)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	launchCmd := prepareLaunchCommand(launchBin, opts.Hardware, imageDir)
	logEvent(c.env, "launch command prepared", "command", launchCmd)

	proceed, err := c.resolveConflict(filepath.Dir(launchBin))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !proceed {
		logEvent(c.env, "creation canceled by user")
		return nil, nil
	}

	// launch_cvd blocks until boot completes or fails; exit code 0 is the
	// boot-completed signal.
	output, err := c.runCommand(launchCmd)
	if err != nil {
		launchErr := &LaunchFailureError{
			Output:      string(output),
			LogPathHint: filepath.Join(c.env.RuntimeDir, "launcher.log"),
			Err:         err,
		}
		recordSpanError(span, launchErr)
		return nil, launchErr
	}

	report := NewReport("create")
	report.SetStatus(StatusSuccess)
	report.AddData("devices", map[string]any{
		"adb_port": DefaultADBPort,
		"vnc_port": DefaultVNCPort,
	})
	if opts.AutoConnect {
		// The display client launch itself belongs to the caller; the report
		// carries everything it needs.
		logEvent(c.env, "autoconnect requested",
			"vnc", fmt.Sprintf("127.0.0.1:%d", DefaultVNCPort))
	}
	span.SetAttributes(attribute.String("status", string(report.Status)))
	return report, nil
}

// imageArtifactsPath verifies the local image directory and the host launch
// package exist, returning both paths.
func (c *LocalCreator) imageArtifactsPath(opts CreateOptions) (string, string, error) {
	imageDir := opts.LocalImageDir
	if imageDir == "" {
		imageDir = c.env.LocalImageDir
	}
	if err := verifyLocalImageArtifacts(imageDir); err != nil {
		return "", "", err
	}

	launchBin := filepath.Join(c.env.HostOut, "bin", CmdLaunchCVD)
	if _, err := os.Stat(launchBin); err != nil {
		return "", "", &MissingArtifactsError{
			Artifact: CmdLaunchCVD,
			Hint:     `no launch_cvd found, run "m launch_cvd" first`,
		}
	}
	return imageDir, launchBin, nil
}

func verifyLocalImageArtifacts(imageDir string) error {
	if imageDir == "" {
		return &MissingArtifactsError{
			Artifact: "local image directory",
			Hint:     "set ANDROID_PRODUCT_OUT or pass --local-image",
		}
	}
	if st, err := os.Stat(imageDir); err != nil || !st.IsDir() {
		return &MissingArtifactsError{
			Artifact: "local image directory " + imageDir,
			Hint:     `build the device images first, e.g. "m dist"`,
		}
	}
	images, _ := filepath.Glob(filepath.Join(imageDir, "*.img"))
	if len(images) == 0 {
		return &MissingArtifactsError{
			Artifact: "device images under " + imageDir,
			Hint:     `build the device images first, e.g. "m dist"`,
		}
	}
	return nil
}

// prepareLaunchCommand assembles the launch_cvd invocation, wrapped with the
// group elevation launch_cvd needs for kvm and virtual networking.
func prepareLaunchCommand(launchBin string, hw HardwareSpec, imageDir string) string {
	cmd := fmt.Sprintf("%s --daemon --cpus %d --x_res %d --y_res %d --dpi %d "+
		"--memory_mb %d --blank_data_image_mb %d "+
		"--data_policy always_create "+
		"--system_image_dir %s "+
		"--vnc_server_port %d",
		launchBin, hw.CPUs, hw.XRes, hw.YRes, hw.DPI,
		hw.MemoryMB, hw.DiskMB, imageDir, DefaultVNCPort)
	return addUserGroupsToCmd(cmd, cvdUserGroups)
}

// resolveConflict enforces the single-local-instance rule. When an instance
// is already running it asks the operator; "y" stops the running instance
// first, anything else cancels the whole operation. Best effort and
// non-atomic: a concurrent invocation between the check and the launch is
// not defended against.
func (c *LocalCreator) resolveConflict(hostPackDir string) (bool, error) {
	running, err := c.discover(c.env)
	if err != nil {
		return false, err
	}
	if running == nil {
		return true, nil
	}
	logEvent(c.env, "cuttlefish device already running", "name", running.Name)
	if !c.confirm(confirmRelaunch) {
		return false, nil
	}
	stopCmd := addUserGroupsToCmd(filepath.Join(hostPackDir, CmdStopCVD), cvdUserGroups)
	if err := c.runQuiet(stopCmd); err != nil {
		return false, fmt.Errorf("stop running instance: %w", err)
	}
	return true, nil
}

// addUserGroupsToCmd wraps command so it runs under each of the given groups.
func addUserGroupsToCmd(command string, groups []string) string {
	if len(groups) == 0 {
		return command
	}
	for i := len(groups) - 1; i >= 0; i-- {
		command = fmt.Sprintf("sg %s <<EOF\n%s\nEOF", groups[i], command)
	}
	return command
}

func runShell(command string) ([]byte, error) {
	return exec.Command("sh", "-c", command).CombinedOutput()
}

func runShellQuiet(command string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// promptYes prints the message and reads one line; only an explicit "y"
// (case-insensitive) answers yes.
func promptYes(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
