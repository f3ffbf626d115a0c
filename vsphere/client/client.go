// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vmdkops/vmdkperf/logger"
	"github.com/vmdkops/vmdkperf/pkg/tlscfg"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/performance"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

const (
	virtualMachine = "VirtualMachine"

	// Matches the performance manager's real-time collection granularity.
	realtimeInterval = 20

	maxIdleConnections = 8
)

var ErrVMNotFound = errors.New("virtual machine not found")

type Config struct {
	URL      string
	User     string
	Password string
	tlscfg.TLSConfig
	Timeout time.Duration
	// CallerID is sent as the User-Agent of every call, it shows up in the service's session list.
	CallerID string
	// KeepAlive enables an idle session ping when positive.
	KeepAlive time.Duration
	Logger    *logger.Logger
}

// Identity is the service's view of the logged in principal.
type Identity struct {
	Key      string
	UserName string
}

// Client is one authenticated session with the performance service.
type Client struct {
	*logger.Logger

	vim      *vim25.Client
	sessions *session.Manager
	perf     *performance.Manager
	identity Identity
}

func newSoapClient(config Config) (*soap.Client, error) {
	soapURL, err := soap.ParseURL(config.URL)
	if err != nil {
		return nil, err
	}
	if soapURL == nil {
		return nil, fmt.Errorf("unparsable url '%s'", config.URL)
	}
	soapURL.User = url.UserPassword(config.User, config.Password)
	soapClient := soap.NewClient(soapURL, config.TLSConfig.InsecureSkipVerify)

	tlsConfig, err := tlscfg.NewTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil && len(tlsConfig.Certificates) > 0 {
		soapClient.SetCertificate(tlsConfig.Certificates[0])
	}
	if config.TLSConfig.TLSCA != "" {
		if err := soapClient.SetRootCAs(config.TLSConfig.TLSCA); err != nil {
			return nil, err
		}
	}

	if t, ok := soapClient.Transport.(*http.Transport); ok {
		t.MaxIdleConnsPerHost = maxIdleConnections
		t.TLSHandshakeTimeout = config.Timeout
	}
	soapClient.Timeout = config.Timeout
	soapClient.UserAgent = config.CallerID

	return soapClient, nil
}

// New establishes a new session: it dials the endpoint, logs in and records the session identity.
func New(ctx context.Context, config Config) (*Client, error) {
	soapClient, err := newSoapClient(config)
	if err != nil {
		return nil, err
	}

	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		return nil, fmt.Errorf("connect to '%s': %w", config.URL, err)
	}

	c := &Client{
		Logger:   config.Logger,
		vim:      vimClient,
		sessions: session.NewManager(vimClient),
		perf:     performance.NewManager(vimClient),
	}

	if config.KeepAlive > 0 {
		c.addKeepAlive(config.KeepAlive)
	}

	if err := c.sessions.Login(ctx, url.UserPassword(config.User, config.Password)); err != nil {
		return nil, fmt.Errorf("login as '%s': %w", config.User, err)
	}

	us, err := c.sessions.UserSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user session: %w", err)
	}
	if us != nil {
		c.identity = Identity{Key: us.Key, UserName: us.UserName}
	}

	c.Debugf("session established: user '%s', server '%s' (%s)", c.identity.UserName, vimClient.ServiceContent.About.FullName, config.CallerID)

	return c, nil
}

func (c *Client) Identity() Identity {
	return c.identity
}

// Version returns the API version of the service, e.g. "8.0.3.0".
func (c *Client) Version() string {
	return c.vim.ServiceContent.About.Version
}

func (c *Client) Logout(ctx context.Context) error {
	return c.sessions.Logout(ctx)
}

// CounterInfo returns the metadata of every counter the service supports.
func (c *Client) CounterInfo(ctx context.Context) ([]types.PerfCounterInfo, error) {
	return c.perf.CounterInfo(ctx)
}

// AvailableMetrics returns the real-time metric IDs (counter + instance) available for the entity.
func (c *Client) AvailableMetrics(ctx context.Context, entity types.ManagedObjectReference) ([]types.PerfMetricId, error) {
	return c.perf.AvailableMetric(ctx, entity, realtimeInterval)
}

func (c *Client) Query(ctx context.Context, specs []types.PerfQuerySpec) ([]types.BasePerfEntityMetricBase, error) {
	return c.perf.Query(ctx, specs)
}

// FindVM looks the VM up by its BIOS UUID, falling back to its instance UUID.
func (c *Client) FindVM(ctx context.Context, uuid string) (types.ManagedObjectReference, error) {
	si := object.NewSearchIndex(c.vim)

	for _, instanceUUID := range []bool{false, true} {
		ref, err := si.FindByUuid(ctx, nil, uuid, true, &instanceUUID)
		if err != nil {
			return types.ManagedObjectReference{}, err
		}
		if ref != nil {
			return ref.Reference(), nil
		}
	}

	return types.ManagedObjectReference{}, fmt.Errorf("%w: uuid '%s'", ErrVMNotFound, uuid)
}

// VirtualMachines retrieves every VM under the root folder.
func (c *Client) VirtualMachines(ctx context.Context, pathSet ...string) ([]mo.VirtualMachine, error) {
	m := view.NewManager(c.vim)
	v, err := m.CreateContainerView(ctx, c.vim.ServiceContent.RootFolder, []string{virtualMachine}, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = v.Destroy(ctx) }()

	var vms []mo.VirtualMachine
	if err := v.Retrieve(ctx, []string{virtualMachine}, pathSet, &vms); err != nil {
		return nil, err
	}
	return vms, nil
}
