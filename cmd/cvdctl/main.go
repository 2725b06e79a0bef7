// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	core "github.com/forkbombeu/cvdctl/internal/cvd"
	"github.com/forkbombeu/cvdctl/internal/gce"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()
	shutdown, err := setupTelemetry(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "telemetry disabled:", err)
	}
	if shutdown != nil {
		defer shutdown(ctx)
	}

	env := core.Detect()
	env.Context = ctx

	root := &cobra.Command{
		Use:     "cvdctl",
		Short:   "Cuttlefish virtual device lifecycle tool (local and GCE-hosted)",
		Version: version,
	}

	// create
	var crCPUs, crXRes, crYRes, crDPI int
	var crMemory, crDisk, crImageDir string
	var crAutoConnect bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Launch a local cuttlefish instance and wait for it to boot",
		RunE: func(cmd *cobra.Command, args []string) error {
			memMB, err := parseSizeMB(crMemory)
			if err != nil {
				return fmt.Errorf("--memory: %w", err)
			}
			diskMB, err := parseSizeMB(crDisk)
			if err != nil {
				return fmt.Errorf("--data-disk: %w", err)
			}

			creator := core.NewLocalCreator(env)
			report, err := creator.Create(core.CreateOptions{
				Hardware: core.HardwareSpec{
					CPUs:     crCPUs,
					XRes:     crXRes,
					YRes:     crYRes,
					DPI:      crDPI,
					MemoryMB: memMB,
					DiskMB:   diskMB,
				},
				LocalImageDir: crImageDir,
				AutoConnect:   crAutoConnect,
			})
			if err != nil {
				return err
			}
			if report == nil {
				// Operator declined to replace the running instance.
				fmt.Println("Exiting out")
				return nil
			}
			return printJSON(report)
		},
	}
	createCmd.Flags().IntVar(&crCPUs, "cpus", 2, "CPU count")
	createCmd.Flags().IntVar(&crXRes, "x-res", 720, "horizontal resolution")
	createCmd.Flags().IntVar(&crYRes, "y-res", 1280, "vertical resolution")
	createCmd.Flags().IntVar(&crDPI, "dpi", 320, "screen density")
	createCmd.Flags().StringVar(&crMemory, "memory", "2048M", "device RAM (e.g. 2048M, 4G)")
	createCmd.Flags().StringVar(&crDisk, "data-disk", "4096M", "blank data disk size (e.g. 4096M, 8G)")
	createCmd.Flags().StringVar(&crImageDir, "local-image", "", "device image directory (default: $CVDCTL_LOCAL_IMAGE_DIR)")
	createCmd.Flags().BoolVar(&crAutoConnect, "autoconnect", true, "include display-client connection details in the report")
	root.AddCommand(createCmd)

	// list
	var listJSON bool
	var listProject, listZone string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List instances discovered from live process and provider state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var instances []*core.Instance

			local, err := core.LocalInstance(env)
			if err != nil {
				return err
			}
			if local != nil {
				instances = append(instances, local)
			}

			if listProject != "" {
				client, err := gce.NewClient(cmd.Context(),
					gce.WithProject(listProject), gce.WithZone(listZone))
				if err != nil {
					return err
				}
				descs, err := client.List(cmd.Context(), gce.InstanceFilter{})
				if err != nil {
					return err
				}
				for _, desc := range descs {
					inst, err := core.RemoteInstance(env, desc)
					if err != nil {
						return err
					}
					instances = append(instances, inst)
				}
			}

			if listJSON {
				return printJSON(instances)
			}
			if len(instances) == 0 {
				fmt.Println("(no instances)")
				return nil
			}
			for _, inst := range instances {
				fmt.Println(inst.Summary())
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	listCmd.Flags().StringVar(&listProject, "project", "", "GCE project to also list remote instances from")
	listCmd.Flags().StringVar(&listZone, "zone", "", "GCE zone for --project")
	root.AddCommand(listCmd)

	// reconnect
	var rcInstance, rcProject, rcZone, rcUser, rcKeyPath string
	reconnectCmd := &cobra.Command{
		Use:   "reconnect",
		Short: "Re-establish SSH port forwarding to a remote instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := gce.NewClient(cmd.Context(),
				gce.WithProject(rcProject), gce.WithZone(rcZone))
			if err != nil {
				return err
			}
			desc, err := client.Instance(cmd.Context(), rcInstance)
			if err != nil {
				return err
			}
			inst, err := core.RemoteInstance(env, desc)
			if err != nil {
				return err
			}
			if inst.IP == "" {
				return fmt.Errorf("instance %s has no external IP", rcInstance)
			}
			if inst.SSHTunnelConnected {
				fmt.Printf("already connected: adb 127.0.0.1:%d vnc 127.0.0.1:%d\n",
					inst.AdbPort, inst.VncPort)
				return nil
			}

			if rcKeyPath != "" {
				cfg, err := core.NewSSHConfigFromFile(rcUser, rcKeyPath, 10*time.Second)
				if err != nil {
					return err
				}
				if err := core.CheckRemoteBoot(env, inst.IP, cfg); err != nil {
					return err
				}
			}

			localVNC, err := pickFreePort()
			if err != nil {
				return err
			}
			localADB, err := pickFreePort()
			if err != nil {
				return err
			}
			if err := core.EstablishForwarding(env, rcUser, inst.IP, localVNC, localADB); err != nil {
				return err
			}
			fmt.Printf("connected: adb 127.0.0.1:%d vnc 127.0.0.1:%d\n", localADB, localVNC)
			return nil
		},
	}
	reconnectCmd.Flags().StringVar(&rcInstance, "instance", "", "remote instance name")
	reconnectCmd.Flags().StringVar(&rcProject, "project", "", "GCE project")
	reconnectCmd.Flags().StringVar(&rcZone, "zone", "", "GCE zone")
	reconnectCmd.Flags().StringVar(&rcUser, "ssh-user", "vsoc-01", "remote login user")
	reconnectCmd.Flags().StringVar(&rcKeyPath, "ssh-key", "", "private key for the remote boot check (skipped when empty)")
	_ = reconnectCmd.MarkFlagRequired("instance")
	root.AddCommand(reconnectCmd)

	// delete
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Stop and remove the local instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := core.NewLocalDeleter(env).Delete()
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	root.AddCommand(deleteCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseSizeMB accepts human-readable sizes ("2048M", "4G", "2GiB") and plain
// megabyte numbers.
func parseSizeMB(value string) (int, error) {
	bytes, err := units.RAMInBytes(value)
	if err != nil {
		return 0, err
	}
	if bytes < units.MiB {
		// Bare numbers below one MiB are taken as megabytes already.
		return int(bytes), nil
	}
	return int(bytes / units.MiB), nil
}

// pickFreePort asks the kernel for an unused local TCP port.
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
