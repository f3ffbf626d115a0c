// SPDX-License-Identifier: GPL-3.0-or-later

package buildinfo

import "fmt"

// Name is the executable name reported in logs and the default caller identity.
const Name = "vmdkperf"

// Version stores the version number. It's set during the build process using build flags.
var Version = "v0.0.0"

// UserAgent identifies this application to the remote performance service.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}
