// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/ssh"
)

// forwardingArgs builds the ssh invocation that forwards localVNC/localADB to
// the instance's default device ports. The argument shape is load-bearing:
// discovery later re-identifies the tunnel by matching this exact command
// line in the process table.
func forwardingArgs(user, ip string, localVNC, localADB int) []string {
	return []string{
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "StrictHostKeyChecking=no",
		"-f", "-N",
		"-L", fmt.Sprintf("%d:127.0.0.1:%d", localVNC, DefaultVNCPort),
		"-L", fmt.Sprintf("%d:127.0.0.1:%d", localADB, DefaultADBPort),
		"-l", user,
		ip,
	}
}

// EstablishForwarding starts a background ssh tunnel to ip, forwarding the
// given local ports to the instance's default vnc and adb ports. The tunnel
// runs as a separate process so it stays up after cvdctl exits and remains
// discoverable by listing.
func EstablishForwarding(env Env, user, ip string, localVNC, localADB int) error {
	_, span := startSpan(env, "cvd.EstablishForwarding",
		attribute.String("ip", ip),
		attribute.Int("local_vnc", localVNC),
		attribute.Int("local_adb", localADB))
	defer span.End()

	args := forwardingArgs(user, ip, localVNC, localADB)
	cmd := exec.Command(env.SSH, args...)
	cmd.Stderr = newCommandLogWriter(env, env.SSH, args)
	if err := cmd.Run(); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("ssh forwarding to %s: %w", ip, err)
	}
	logEvent(env, "ssh tunnel established", "ip", ip,
		"vnc", localVNC, "adb", localADB)
	return nil
}

// bootCompleteMarker is printed to the launcher log once the device finishes
// booting.
const bootCompleteMarker = "VIRTUAL_DEVICE_BOOT_COMPLETED"

// NewSSHConfig builds a client config for probing remote instances with the
// given private key.
func NewSSHConfig(user string, privateKey []byte, timeout time.Duration) (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// NewSSHConfigFromFile is NewSSHConfig reading the key from disk.
func NewSSHConfigFromFile(user, keyPath string, timeout time.Duration) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	return NewSSHConfig(user, key, timeout)
}

// RunRemoteCommand executes command on the remote host and returns its
// combined output.
func RunRemoteCommand(env Env, ip string, cfg *ssh.ClientConfig, command string) (string, error) {
	_, span := startSpan(env, "cvd.RunRemoteCommand",
		attribute.String("ip", ip))
	defer span.End()

	addr := net.JoinHostPort(ip, strconv.Itoa(22))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err != nil {
		recordSpanError(span, err)
		return string(out), fmt.Errorf("remote command %q: %w", command, err)
	}
	return string(out), nil
}

// CheckRemoteBoot reports whether the remote instance's launcher log contains
// the boot-completed marker.
func CheckRemoteBoot(env Env, ip string, cfg *ssh.ClientConfig) error {
	command := fmt.Sprintf("grep -q %s ~/cuttlefish_runtime/launcher.log", bootCompleteMarker)
	if _, err := RunRemoteCommand(env, ip, cfg, command); err != nil {
		return fmt.Errorf("remote instance %s not booted: %w", ip, err)
	}
	return nil
}
