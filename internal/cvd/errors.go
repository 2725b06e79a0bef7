// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// ProcessQueryError reports that the OS process-table enumeration failed.
// It is never retried; absence of a matching process is NOT this error,
// discovery represents that as a nil instance.
type ProcessQueryError struct {
	Err error
}

func (e *ProcessQueryError) Error() string {
	return fmt.Sprintf("process table query failed: %v", e.Err)
}

func (e *ProcessQueryError) Unwrap() []error {
	return []error{e.Err, errdefs.ErrUnavailable}
}

// MissingArtifactsError reports that a required local image or host package
// is absent before launch. Hint names the command that produces the artifact.
type MissingArtifactsError struct {
	Artifact string
	Hint     string
}

func (e *MissingArtifactsError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.Artifact, e.Hint)
}

func (e *MissingArtifactsError) Unwrap() error { return errdefs.ErrNotFound }

// LaunchFailureError reports a non-zero exit from the launch command.
type LaunchFailureError struct {
	Output      string
	LogPathHint string
	Err         error
}

func (e *LaunchFailureError) Error() string {
	return fmt.Sprintf("can't launch cuttlefish device: %v\nfor more detail: %s\n%s",
		e.Err, e.LogPathHint, e.Output)
}

func (e *LaunchFailureError) Unwrap() []error {
	return []error{e.Err, errdefs.ErrInternal}
}
