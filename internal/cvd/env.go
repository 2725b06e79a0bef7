// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
)

type Env struct {
	HostOut       string // ANDROID_HOST_OUT (host package with launch_cvd/stop_cvd under bin/)
	LocalImageDir string // CVDCTL_LOCAL_IMAGE_DIR (default ANDROID_PRODUCT_OUT)
	RuntimeDir    string // CVDCTL_RUNTIME_DIR (default ~/cuttlefish_runtime)
	PS            string // ps
	SSH           string // ssh
	// CorrelationID is used to tie logs to a specific workflow/activity.
	CorrelationID string
	// Context is used to parent OpenTelemetry spans.
	Context context.Context
}

func Detect() Env {
	usr, _ := user.Current()
	home := ""
	if usr != nil {
		home = usr.HomeDir
	} else if h := os.Getenv("HOME"); h != "" {
		home = h
	}

	hostOut := os.Getenv("ANDROID_HOST_OUT")
	imgDir := getenv("CVDCTL_LOCAL_IMAGE_DIR", os.Getenv("ANDROID_PRODUCT_OUT"))
	runtimeDir := getenv("CVDCTL_RUNTIME_DIR", filepath.Join(home, "cuttlefish_runtime"))
	correlationID := os.Getenv("CVDCTL_CORRELATION_ID")

	return Env{
		HostOut:       hostOut,
		LocalImageDir: imgDir,
		RuntimeDir:    runtimeDir,
		PS:            "ps",
		SSH:           "ssh",
		CorrelationID: correlationID,
		Context:       context.Background(),
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
