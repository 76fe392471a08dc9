// Command corvidctl is the thin CLI driver for the corvid query engine:
// ingest (run IMPORTER/ARCHIVE/INDEX to completion over a synthetic
// event source) and query (drive an EXPORTER against an existing
// archive+index pair). Grounded on the teacher's main.go (context +
// signal handling, urfave/cli app assembly, klog fatal-on-error).
package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	logging "github.com/ipfs/go-log/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-interrupt:
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "corvidctl",
		Version:     gitCommitSHA,
		Description: "CLI to ingest, index and query corvid event archives.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug-level logging"},
		},
		Before: func(c *cli.Context) error {
			level := "info"
			if c.Bool("verbose") {
				level = "debug"
			}
			if err := logging.SetLogLevel("*", level); err != nil {
				klog.Warningf("failed to set log level: %s", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			ingestCmd,
			queryCmd,
		},
	}
	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
