// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"strings"

	"github.com/vmdkops/vmdkperf/logger"
)

type state int

const (
	stateIdle state = iota
	stateResolving
	stateQuerying
	stateRecovering
	stateTranslating
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateResolving:
		return "resolving"
	case stateQuerying:
		return "querying"
	case stateRecovering:
		return "recovering"
	case stateTranslating:
		return "translating"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// call tracks the progress of one stats request for debug logging.
type call struct {
	*logger.Logger
	vm     VM
	device string
	state  state
	trace  []state
}

func newCall(l *logger.Logger, vm VM, device string) *call {
	return &call{Logger: l, vm: vm, device: device, state: stateIdle, trace: []state{stateIdle}}
}

func (c *call) to(s state) {
	c.state = s
	c.trace = append(c.trace, s)
}

// finish logs the states the call went through, failed calls at warning level.
func (c *call) finish(err error) {
	if err == nil {
		c.to(stateDone)
		c.Debugf("vm %s device '%s': %s", c.vm, c.device, c.path())
		return
	}
	if isNoData(err) {
		c.Debugf("vm %s device '%s': no data (%s)", c.vm, c.device, c.path())
		return
	}
	c.Warningf("vm %s device '%s': failed in state '%s' (%s): %v", c.vm, c.device, c.state, c.path(), err)
}

func (c *call) path() string {
	parts := make([]string, 0, len(c.trace))
	for _, s := range c.trace {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " -> ")
}
