// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"time"

	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

// addKeepAlive pings the service while the session is idle.
// It never logs back in: an expired session is recovered by the caller on its next request.
func (c *Client) addKeepAlive(every time.Duration) {
	f := func(rt soap.RoundTripper) error {
		_, err := methods.GetCurrentTime(context.Background(), rt)
		if err == nil {
			return nil
		}
		if IsNotAuthenticated(err) {
			c.Warning("keepalive: session is no longer authenticated, stopping keepalive")
			return err
		}
		c.Debugf("keepalive: %v", err)
		return nil
	}
	c.vim.RoundTripper = session.KeepAliveHandler(c.vim.RoundTripper, every, f)
}

// IsNotAuthenticated reports whether err, or any error it wraps, is the NotAuthenticated fault
// the service returns for an expired or revoked session.
// Decoded SOAP faults carry the fault detail by value, locally built ones by pointer.
func IsNotAuthenticated(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if soap.IsSoapFault(err) && isNotAuthenticatedFault(soap.ToSoapFault(err).VimFault()) {
			return true
		}
		if soap.IsVimFault(err) && isNotAuthenticatedFault(soap.ToVimFault(err)) {
			return true
		}
	}
	return false
}

func isNotAuthenticatedFault(fault any) bool {
	switch fault.(type) {
	case types.NotAuthenticated, *types.NotAuthenticated:
		return true
	default:
		return false
	}
}
