// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"bytes"
	"os/exec"
	"runtime"
	"strings"
)

// psArgs asks for the process start time followed by the full command line.
// The lstart column is fixed-width text up to the first path token, which the
// launch-command grammar relies on.
var psArgs = []string{"-eo", "lstart,cmd"}

// isSupportedPlatform reports whether local instances can run on this host.
// launch_cvd is Linux-only; elsewhere discovery short-circuits to "none".
func isSupportedPlatform() bool {
	return runtime.GOOS == "linux"
}

// scanProcessTable returns the live process table, one process per line.
// No parsing happens here; the matcher owns the grammars.
func scanProcessTable(env Env) ([]string, error) {
	cmd := exec.Command(env.PS, psArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = newCommandLogWriter(env, env.PS, psArgs)
	if err := cmd.Run(); err != nil {
		return nil, &ProcessQueryError{Err: err}
	}
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n"), nil
}
