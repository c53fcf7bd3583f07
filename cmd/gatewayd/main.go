// Command gatewayd runs the content-addressed data gateway: the retrieval
// pipeline, rate limiter and admission gate behind an HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logrus.Debugf(format, args...)
	})); err != nil {
		fmt.Fprintf(os.Stderr, "gatewayd: maxprocs: %v\n", err)
	}

	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "content-addressed data gateway",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
