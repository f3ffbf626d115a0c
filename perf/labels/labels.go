// SPDX-License-Identifier: GPL-3.0-or-later

package labels

import (
	"errors"
	"fmt"
)

// Ignore is the short label of counters that are never reported.
const Ignore = "-"

var ErrUnknownLabel = errors.New("unknown counter label")

// virtualDisk counter labels as reported by the performance manager.
var defaultTable = map[string]string{
	"Average read requests per second":             "numReads",
	"Average write requests per second":            "numWrites",
	"Read rate":                                    "readRate",
	"Write rate":                                   "writeRate",
	"Read latency":                                 "avgReadLat",
	"Write latency":                                "avgWriteLat",
	"Read Latency (us)":                            "avgReadLatUS",
	"Write Latency (us)":                           "avgWriteLatUS",
	"Average number of outstanding read requests":  "readOIO",
	"Average number of outstanding write requests": "writeOIO",
	"Read request size":                            "readIOSize",
	"Write request size":                           "writeIOSize",
	"Number of small seeks":                        "smallSeeks",
	"Number of medium seeks":                       "mediumSeeks",
	"Number of large seeks":                        "largeSeeks",
	"Read workload metric":                         Ignore,
	"Write workload metric":                        Ignore,
}

var unitAbbrev = map[string]string{
	"microsecond":        "usec",
	"millisecond":        "msec",
	"second":             "sec",
	"kiloBytesPerSecond": "KBps",
	"megaBytesPerSecond": "MBps",
	"kiloBytes":          "KB",
	"megaBytes":          "MB",
	"percent":            "%",
}

// Translator maps verbose counter labels to short, stable display names.
type Translator struct {
	table map[string]string
}

// Default returns a Translator for the virtual disk counter group.
func Default() *Translator {
	return New(defaultTable)
}

func New(table map[string]string) *Translator {
	t := &Translator{table: make(map[string]string, len(table))}
	for k, v := range table {
		t.table[k] = v
	}
	return t
}

// ShortLabel fails for labels missing from the table, it means the service's catalog
// has changed and the table needs an update.
func (t *Translator) ShortLabel(verbose string) (string, error) {
	v, ok := t.table[verbose]
	if !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnknownLabel, verbose)
	}
	return v, nil
}

func IsIgnored(short string) bool {
	return short == Ignore
}

// Format appends the unit in parentheses, dimensionless counts are left bare.
func Format(short, unit string) string {
	if isDimensionless(unit) {
		return short
	}
	if v, ok := unitAbbrev[unit]; ok {
		unit = v
	}
	return fmt.Sprintf("%s(%s)", short, unit)
}

func isDimensionless(unit string) bool {
	return unit == "" || unit == "number"
}
