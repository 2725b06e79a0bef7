// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"fmt"
	"strings"

	"cloud.google.com/go/compute/apiv1/computepb"
	"go.opentelemetry.io/otel/attribute"
)

// Instance is a derived, ephemeral view of one virtual device. It is
// reconstructed from evidence (process table, provider description) on every
// query and owns no resources. Re-listing builds fresh values, it never
// mutates a previously returned Instance.
type Instance struct {
	Name               string `json:"name"`
	FullName           string `json:"fullname"`
	Status             string `json:"status"`
	Display            string `json:"display"`
	IP                 string `json:"ip"`
	AdbPort            int    `json:"adb_port"`
	VncPort            int    `json:"vnc_port"`
	SSHTunnelConnected bool   `json:"ssh_tunnel_connected"`
	CreateTime         string `json:"create_time"`
	AvdType            string `json:"avd_type"`
	AvdFlavor          string `json:"avd_flavor"`
	IsLocal            bool   `json:"is_local"`
}

func fullName(deviceSerial, instanceName string) string {
	return fmt.Sprintf("device serial: %s (%s)", deviceSerial, instanceName)
}

// Summary renders the instance the way the list command prints it.
func (i *Instance) Summary() string {
	indent := strings.Repeat(" ", 3)
	lines := []string{
		fmt.Sprintf(" name: %s", i.Name),
		fmt.Sprintf("%s IP: %s", indent, i.IP),
		fmt.Sprintf("%s create time: %s", indent, i.CreateTime),
		fmt.Sprintf("%s status: %s", indent, i.Status),
		fmt.Sprintf("%s avd type: %s", indent, i.AvdType),
		fmt.Sprintf("%s display: %s", indent, i.Display),
		fmt.Sprintf("%s vnc: 127.0.0.1:%d", indent, i.VncPort),
	}
	if i.AdbPort != 0 {
		lines = append(lines, fmt.Sprintf("%s adb serial: 127.0.0.1:%d", indent, i.AdbPort))
	} else {
		lines = append(lines, fmt.Sprintf("%s adb serial: disconnected", indent))
	}
	return strings.Join(lines, "\n")
}

// LocalInstance discovers the local instance from the live process table.
// Returns (nil, nil) when no launch_cvd process exists or the platform does
// not support local instances at all.
func LocalInstance(env Env) (*Instance, error) {
	_, span := startSpan(env, "cvd.LocalInstance")
	defer span.End()
	if !isSupportedPlatform() {
		return nil, nil
	}
	lines, err := scanProcessTable(env)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	inst := localInstanceFromLines(lines)
	span.SetAttributes(attribute.Bool("found", inst != nil))
	return inst, nil
}

// localInstanceFromLines is the pure half of local discovery: process-table
// snapshot in, optional instance out.
func localInstanceFromLines(lines []string) *Instance {
	ev, ok := findLaunchEvidence(lines)
	if !ok {
		return nil
	}
	return &Instance{
		Name:               LocalInstanceName,
		FullName:           fullName(fmt.Sprintf("127.0.0.1:%d", DefaultADBPort), LocalInstanceName),
		Status:             StatusRunning,
		Display:            fmt.Sprintf("%sx%s (%s)", ev.XRes, ev.YRes, ev.DPI),
		IP:                 "127.0.0.1",
		AdbPort:            DefaultADBPort,
		VncPort:            DefaultVNCPort,
		SSHTunnelConnected: true,
		CreateTime:         ev.CreateTime,
		AvdType:            TypeCuttlefish,
		IsLocal:            true,
	}
}

// RemoteInstance builds an instance view from a provider-returned description,
// correlating it with any live SSH tunnel found in the process table.
func RemoteInstance(env Env, desc *computepb.Instance) (*Instance, error) {
	_, span := startSpan(env, "cvd.RemoteInstance",
		attribute.String("name", desc.GetName()))
	defer span.End()

	var lines []string
	if remoteNatIP(desc) != "" {
		var err error
		lines, err = scanProcessTable(env)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
	}
	return remoteInstanceFromEvidence(desc, lines), nil
}

// remoteNatIP returns the external address of desc. All interfaces and access
// configs are walked and each non-nil natIP overwrites the previous one, so
// the last one iterated wins. Matches the original tooling on multi-NIC
// instances, where the result depends on the provider's iteration order.
func remoteNatIP(desc *computepb.Instance) string {
	ip := ""
	for _, nic := range desc.GetNetworkInterfaces() {
		for _, ac := range nic.GetAccessConfigs() {
			if ac.NatIP != nil {
				ip = ac.GetNatIP()
			}
		}
	}
	return ip
}

// remoteInstanceFromEvidence is the pure half of remote construction.
func remoteInstanceFromEvidence(desc *computepb.Instance, psLines []string) *Instance {
	inst := &Instance{
		Name:       desc.GetName(),
		CreateTime: desc.GetCreationTimestamp(),
		Status:     desc.GetStatus(),
		IsLocal:    false,
	}

	if ip := remoteNatIP(desc); ip != "" {
		ports := findTunnelPorts(psLines, ip)
		inst.IP = ip
		inst.AdbPort = ports.ADB
		inst.VncPort = ports.VNC
		if inst.AdbPort != 0 {
			inst.SSHTunnelConnected = true
			inst.FullName = fullName(fmt.Sprintf("127.0.0.1:%d", inst.AdbPort), inst.Name)
		} else {
			inst.SSHTunnelConnected = false
			inst.FullName = fullName("not connected", inst.Name)
		}
	}

	for _, item := range desc.GetMetadata().GetItems() {
		switch item.GetKey() {
		case MetaKeyDisplay:
			inst.Display = item.GetValue()
		case MetaKeyAVDType:
			inst.AvdType = item.GetValue()
		case MetaKeyAVDFlavor:
			inst.AvdFlavor = item.GetValue()
		}
	}
	return inst
}
