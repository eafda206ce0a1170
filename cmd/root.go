package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mendersoftware/iot-manager/core/logger"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "iot-manager",
	Short: "IoT Manager Service",
	Long: `IoT Manager keeps device state consistent between the device
authentication service and external IoT hub providers. It serves the
integration management API and runs batch device reconciliation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a specific process exit code through cobra's error
// return. The sync command uses it to report partial and aborted runs.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	// Console format at debug level so CLI users get readable,
	// ISO8601-stamped output.
	cfg := &logger.Config{
		Level:  "debug",
		Format: "console",
	}
	if l, logErr := logger.New(cfg); logErr == nil {
		l.Error("command failed", zap.Error(err))
		_ = l.Sync()
	} else {
		fmt.Println(err)
	}

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	os.Exit(1)
}
