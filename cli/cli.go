// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"errors"

	"github.com/jessevdk/go-flags"

	"github.com/vmdkops/vmdkperf/pkg/buildinfo"
)

// Option defines command line options.
type Option struct {
	ConfigFile string `short:"c" long:"config" description:"config file to read" default:"/etc/vmdkperf/vmdkperf.yaml"`
	VMName     string `long:"vm-name" description:"display name of the vm, used in logs only"`
	VMUUID     string `long:"vm-uuid" description:"BIOS or instance uuid of the vm"`
	Bus        int    `long:"bus" description:"scsi bus number of the virtual disk" default:"0"`
	Unit       int    `long:"unit" description:"scsi unit number of the virtual disk" default:"0"`
	JSON       bool   `long:"json" description:"print stats as json"`
	ListVMs    bool   `long:"list-vms" description:"list virtual machines and their uuids and exit"`
	Serve      bool   `long:"serve" description:"serve stats of the configured volumes as prometheus metrics"`
	Debug      bool   `short:"d" long:"debug" description:"debug mode"`
	Version    bool   `short:"v" long:"version" description:"display the version and exit"`
}

// Parse returns parsed command-line flags in Option struct
func Parse(args []string) (*Option, error) {
	opt := &Option{}
	parser := flags.NewParser(opt, flags.Default)
	parser.Name = buildinfo.Name
	parser.Usage = "[OPTIONS]"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errors.New("unexpected positional arguments")
	}

	return opt, nil
}

func IsHelp(err error) bool {
	return flags.WroteHelp(err)
}

// IsQuery reports whether a single volume query was requested.
func (o *Option) IsQuery() bool {
	return !o.ListVMs && !o.Serve
}
