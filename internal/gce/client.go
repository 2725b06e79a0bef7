// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package gce looks up cuttlefish host instances on Google Compute Engine.
// It only reads instance descriptions; creation and teardown of the VMs
// themselves belong to other tooling.
package gce

import (
	"context"
	"fmt"
	"strings"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const scopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"

// Client wraps GCE credentials and project/zone configuration.
type Client struct {
	credentials *google.Credentials
	project     string
	zone        string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithProject sets the GCE project ID.
func WithProject(project string) Option {
	return func(c *Client) { c.project = project }
}

// WithZone sets the GCE zone.
func WithZone(zone string) Option {
	return func(c *Client) { c.zone = zone }
}

// NewClient loads Application Default Credentials and applies the options.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	creds, err := google.FindDefaultCredentials(ctx, scopeCloudPlatform)
	if err != nil {
		return nil, fmt.Errorf("load default credentials: %w", err)
	}
	c := &Client{credentials: creds, project: creds.ProjectID}
	for _, opt := range opts {
		opt(c)
	}
	if c.project == "" {
		return nil, fmt.Errorf("no GCE project configured")
	}
	return c, nil
}

func (c *Client) newInstancesClient(ctx context.Context) (*compute.InstancesClient, error) {
	return compute.NewInstancesRESTClient(ctx,
		option.WithTokenSource(c.credentials.TokenSource),
	)
}

// Instance fetches one instance description by name.
func (c *Client) Instance(ctx context.Context, name string) (*computepb.Instance, error) {
	ic, err := c.newInstancesClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create instances client: %w", err)
	}
	defer func() { _ = ic.Close() }()

	inst, err := ic.Get(ctx, &computepb.GetInstanceRequest{
		Project:  c.project,
		Zone:     c.zone,
		Instance: name,
	})
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", name, err)
	}
	return inst, nil
}

// List returns all instance descriptions in the configured zone matching the
// filter. An empty filter lists everything.
func (c *Client) List(ctx context.Context, filter InstanceFilter) ([]*computepb.Instance, error) {
	ic, err := c.newInstancesClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create instances client: %w", err)
	}
	defer func() { _ = ic.Close() }()

	req := &computepb.ListInstancesRequest{
		Project: c.project,
		Zone:    c.zone,
	}
	if expr := buildFilter(filter); expr != "" {
		req.Filter = &expr
	}

	var out []*computepb.Instance
	it := ic.List(ctx, req)
	for {
		inst, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// InstanceFilter narrows a List call.
type InstanceFilter struct {
	Name   string // name prefix
	Status string // e.g. RUNNING, TERMINATED
}

// buildFilter converts an InstanceFilter into a GCE filter expression.
func buildFilter(filter InstanceFilter) string {
	var parts []string
	if filter.Name != "" {
		parts = append(parts, fmt.Sprintf("name:%s", filter.Name))
	}
	if filter.Status != "" {
		parts = append(parts, fmt.Sprintf("status=%s", strings.ToUpper(filter.Status)))
	}
	return strings.Join(parts, " AND ")
}
