// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package logger

import "github.com/coreos/go-systemd/v22/journal"

// underJournald reports whether stderr is a journald stream, e.g. when running as a systemd unit.
func underJournald() bool {
	ok, err := journal.StderrIsJournalStream()
	return err == nil && ok
}
