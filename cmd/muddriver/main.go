// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

// Command muddriver boots the driver: load config, construct the object
// runtime/VM/scheduler collaborators, run the backend loop until an
// orderly or forced shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/mudcore/driver/admin"
	"github.com/mudcore/driver/backend"
	"github.com/mudcore/driver/callout"
	"github.com/mudcore/driver/config"
	"github.com/mudcore/driver/heartbeat"
	"github.com/mudcore/driver/log"
	"github.com/mudcore/driver/master"
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/program"
	"github.com/mudcore/driver/session"
	"github.com/mudcore/driver/vm"
)

// bootstrapPolicy is permissive enough to load exactly one object, the
// master file itself, before the real master.Master policy (which needs
// that very object to exist) takes over. This mirrors the original
// driver's own chicken-and-egg master-object bootstrap.
type bootstrapPolicy struct{ rootUID string }

func (b bootstrapPolicy) CreatorFile(string) string                  { return b.rootUID }
func (b bootstrapPolicy) ValidObject(*object.Object) bool             { return true }
func (b bootstrapPolicy) MoveOrDestruct(item, dest *object.Object) bool {
	return object.Move(item, dest) == nil
}
func (b bootstrapPolicy) Create(*object.Object, []string) {}

// unwiredCompiler reports that no script-language compiler is attached.
// Compilation is an external collaborator per this driver's scope — an
// embedder links in a real implementation of object.Compiler.
type unwiredCompiler struct{}

func (unwiredCompiler) Compile(path string) (*program.Program, error) {
	return nil, fmt.Errorf("muddriver: no compiler wired; cannot compile %s", path)
}

var (
	configFlag = cli.StringFlag{Name: "config", Usage: "path to the driver's TOML config file", Value: "muddriver.toml"}
	masterFlag = cli.StringFlag{Name: "master", Usage: "override the config file's master_file"}
	portFlag   = cli.IntFlag{Name: "port", Usage: "override the config file's mud_port"}
)

func main() {
	app := cli.NewApp()
	app.Name = "muddriver"
	app.Usage = "run an LPMud-style driver"
	app.Flags = []cli.Flag{configFlag, masterFlag, portFlag}
	app.Commands = []cli.Command{
		{
			Name:   "check-config",
			Usage:  "parse and validate the config file, then exit",
			Action: checkConfigAction,
		},
		{
			Name:   "run",
			Usage:  "run the driver (default if no subcommand is given)",
			Action: runAction,
		},
	}
	app.Action = runAction

	if err := app.Run(os.Args); err != nil {
		log.Crit("muddriver: fatal", "err", err)
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.GlobalString(configFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if m := ctx.GlobalString(masterFlag.Name); m != "" {
		cfg.MasterFile = m
	}
	if p := ctx.GlobalInt(portFlag.Name); p != 0 {
		cfg.MudPort = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkConfigAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: mud %q, port %d, mudlib %s\n", cfg.Name, cfg.MudPort, cfg.MudlibDir)
	return nil
}

func runAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log.Info("muddriver: starting", "mud", cfg.Name, "port", cfg.MudPort)

	rt := object.NewRuntime(cfg.ObjectHashTableSize, unwiredCompiler{}, bootstrapPolicy{rootUID: "root"})
	vmachine := vm.New(rt)
	vmachine.ForceEvalBudget(uint64(cfg.MaxEvalCost))

	masterObj, err := rt.Load(cfg.MasterFile)
	if err != nil {
		return fmt.Errorf("loading master object: %w", err)
	}
	rt.Policy = master.New(vmachine, masterObj)

	calls := callout.New()
	hearts := heartbeat.New()
	sessions := session.New(fmt.Sprintf(":%d", cfg.MudPort))

	loop := backend.New(rt, vmachine, calls, hearts, sessions)

	adminSrv := admin.New(loop, rt)
	if cfg.AdminAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.AdminAddr, adminSrv.Handler()); err != nil {
				log.Warn("muddriver: admin server stopped", "err", err)
			}
		}()
	}

	ctxRun, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				loop.RequestShutdown()
			case syscall.SIGUSR2:
				loop.ForceLowEvalCost()
			default:
				cancel()
			}
		}
	}()

	return loop.Run(ctxRun)
}

// operatorConsole starts an interactive line-editing prompt for local
// operators (§6 ambient addition, not part of any mudlib-facing interface):
// each line entered is added to the prompt history and echoed to stdout;
// it does not contact the admin HTTP surface or act on the line. Not wired into
// runAction by default since most deployments run headless; kept here as
// the console entry point an operator can invoke from an interactive
// terminal session.
func operatorConsole(prompt string) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			return
		}
		line.AppendHistory(input)
		fmt.Println(input)
	}
}
