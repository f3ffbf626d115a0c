// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vmdkops/vmdkperf/perf"
)

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer

	printStats(&buf, perf.Stats{
		"numWrites":        {Value: 7, Summary: "Number of writes"},
		"avgReadLat(usec)": {Value: 42, Summary: "Read latency"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.True(t, strings.HasPrefix(lines[0], "avgReadLat(usec)"))
		assert.Contains(t, lines[0], "42")
		assert.True(t, strings.HasPrefix(lines[1], "numWrites"))
		assert.Contains(t, lines[1], "Number of writes")
	}
}
