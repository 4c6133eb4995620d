// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/adaptyst-project/adaptyst-go/internal/config"
	"github.com/adaptyst-project/adaptyst-go/internal/controller"
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if config.Flags.Version {
		fmt.Println("adaptyst", version)
		return
	}

	logger := newLogger()

	systemPath, localPath, scriptDir := config.ResolvePaths()
	if scriptDir != "" {
		logger.V(1).Info("using script directory override", "dir", scriptDir)
	}

	table, err := config.LoadLayered(systemPath, localPath, logger)
	if err != nil {
		logger.Error(err, "failed to load configuration")
		os.Exit(int(errs.ExitUser))
	}

	cfg, err := config.BuildSessionConfig(table, flag.Args())
	if err != nil {
		logger.Error(err, "invalid session configuration")
		os.Exit(int(errs.Code(err)))
	}

	ctl := &controller.Controller{Config: cfg, Logger: logger}
	cmdExitCode, err := ctl.Run()
	if err != nil {
		logger.Error(err, "session failed")
		os.Exit(int(errs.Code(err)))
	}

	os.Exit(cmdExitCode)
}

func newLogger() logr.Logger {
	if config.Flags.Quiet {
		return logr.Discard()
	}
	if config.Flags.Verbose {
		zapLog, _ := zap.NewDevelopment()
		return zapr.NewLogger(zapLog)
	}
	zapLog, _ := zap.NewProduction()
	return zapr.NewLogger(zapLog)
}
