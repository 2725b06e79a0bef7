// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

// ReportStatus is the overall outcome of a lifecycle command.
type ReportStatus string

const (
	StatusSuccess ReportStatus = "SUCCESS"
	StatusFail    ReportStatus = "FAIL"
)

// Report is the structured result handed back to the CLI layer.
type Report struct {
	Command string         `json:"command"`
	Status  ReportStatus   `json:"status"`
	Errors  []string       `json:"errors,omitempty"`
	Data    map[string]any `json:"data"`
}

func NewReport(command string) *Report {
	return &Report{
		Command: command,
		Status:  StatusFail,
		Data:    map[string]any{},
	}
}

func (r *Report) SetStatus(status ReportStatus) { r.Status = status }

func (r *Report) AddData(key string, value any) { r.Data[key] = value }

func (r *Report) AddError(message string) {
	r.Errors = append(r.Errors, message)
}
