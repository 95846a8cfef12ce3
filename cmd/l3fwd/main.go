// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

// Command l3fwd runs the IPv4 forwarding router described by
// SPEC_FULL.md: bind the interfaces and routes named on the command
// line, then forward packets between them until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3fwd/l3fwd/pkg/boot"
	"github.com/l3fwd/l3fwd/pkg/config"
	"github.com/l3fwd/l3fwd/pkg/neterr"
	"github.com/l3fwd/l3fwd/pkg/netio"
	"github.com/l3fwd/l3fwd/pkg/rlog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// -c and -v are registered here; -r and -p are registered by
	// config.Parse below, on the same FlagSet, before it calls
	// fs.Parse — so every flag is recognized regardless of the order
	// the caller passes them in.
	fs := flag.NewFlagSet("l3fwd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configFile := fs.String("c", "", "optional TOML config file supplying routes and interface bindings")
	verbose := fs.Bool("v", false, "enable verbose (debug-level) logging")

	cfg, err := config.Parse(fs, args, config.Config{})
	if err != nil {
		if err == config.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "l3fwd: %v\n", err)
		return 1
	}

	log := rlog.New(*verbose)

	if *configFile != "" {
		f, ferr := os.Open(*configFile)
		if ferr != nil {
			fmt.Fprintf(os.Stderr, "l3fwd: open config file: %v\n", ferr)
			return 1
		}
		fileCfg, lerr := config.LoadFile(f)
		f.Close()
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "l3fwd: %v\n", lerr)
			return 1
		}
		cfg.Routes = append(fileCfg.Routes, cfg.Routes...)
		cfg.Binds = append(fileCfg.Binds, cfg.Binds...)
	}

	if len(cfg.Binds) == 0 {
		fmt.Fprintln(os.Stderr, "l3fwd: at least one -p binding is required")
		fs.Usage()
		return 1
	}

	ifaceNames := make([]string, len(cfg.Binds))
	for i, b := range cfg.Binds {
		ifaceNames[i] = fmt.Sprintf("port%d", b.Port)
	}
	dev, err := netio.NewAFPacketDevice(ifaceNames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "l3fwd: %v\n", err)
		return 1
	}

	router, err := boot.Build(cfg, dev, &netio.GoroutineRuntime{}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "l3fwd: %v\n", neterr.CodeOf(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router.Start(ctx)
	log.Info("router running")
	<-ctx.Done()

	log.Info("shutting down")
	router.Shutdown()
	return 0
}
