// Copyright 2025 AUTHORS
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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dcsandbox/dcsandbox/internal/config"
	"github.com/dcsandbox/dcsandbox/internal/lifecycle"
	"github.com/dcsandbox/dcsandbox/internal/mcpbroker"
	"github.com/dcsandbox/dcsandbox/internal/runtime"
	"github.com/dcsandbox/dcsandbox/internal/store"
	"github.com/dcsandbox/dcsandbox/internal/template"
	"github.com/dcsandbox/dcsandbox/pkg/cli"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		log.Fatalf("resolve data directory: %v", err)
	}
	sandboxesDir := filepath.Join(dataDir, "sandboxes")
	gitCacheDir := filepath.Join(dataDir, "git-cache")

	customTemplatesDir := cfg.Templates.CustomPath
	if customTemplatesDir == "" {
		customTemplatesDir, err = config.CustomTemplatesDir()
		if err != nil {
			log.Fatalf("resolve custom templates directory: %v", err)
		}
	}

	st, err := store.New(sandboxesDir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	registry, err := template.NewRegistry(customTemplatesDir)
	if err != nil {
		log.Fatalf("load template registry: %v", err)
	}

	driver, err := runtime.NewDockerDriver()
	if err != nil {
		log.Fatalf("connect to docker: %v", err)
	}
	defer driver.Close()

	dockerBin, err := exec.LookPath("docker")
	if err != nil {
		log.Fatalf("docker binary not found in PATH: %v", err)
	}

	broker := mcpbroker.New(driver, dockerBin, mcpbroker.PortRange{
		Lo: cfg.MCP.PortRange[0],
		Hi: cfg.MCP.PortRange[1],
	})

	engine := lifecycle.New(st, registry, driver, broker, gitCacheDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := engine.Reconcile(ctx); err != nil {
		log.Printf("startup reconciliation: %v", err)
	}
	engine.StartReaper(ctx)
	defer engine.StopReaper()

	root := cli.NewCommandHandler(engine).RootCmd("dcsandbox")
	root.SetArgs(flag.Args())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
