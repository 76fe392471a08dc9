package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/corvidlabs/corvid/dataflow"
	"github.com/corvidlabs/corvid/engineconfig"
	"github.com/corvidlabs/corvid/exprengine"
)

var queryCmd = &cli.Command{
	Name:      "query",
	Usage:     "evaluate an expression against an existing archive+index pair and print matches",
	ArgsUsage: "<dir> <expr>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 0, Usage: "stop after this many matches (0 = unbounded)"},
		&cli.DurationFlag{Name: "timeout", Value: 0, Usage: "abort the query after this duration (0 = no timeout)"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("usage: corvidctl query <dir> <expr>", 1)
		}
		root := c.Args().Get(0)
		exprText := c.Args().Get(1)

		node, err := exprengine.Parse(exprText)
		if err != nil {
			return fmt.Errorf("corvidctl: parse expression: %w", err)
		}

		cfg := engineconfig.Default()
		e, err := openEngine(root, cfg)
		if err != nil {
			return err
		}

		s := demoSchema()
		exporter := dataflow.SpawnExporter(s, node, nil)
		exporter.Send(dataflow.Put{Role: dataflow.RoleArchive, Actor: e.archive})
		exporter.Send(dataflow.Put{Role: dataflow.RoleIndex, Actor: e.index})
		exporter.Send(dataflow.Put{Role: dataflow.RoleAccountant, Actor: e.acctRef})

		sink := dataflow.NewCollectingSink()
		sinkRef := dataflow.SpawnSink(sink)
		exporter.Send(dataflow.Put{Role: dataflow.RoleSink, Actor: sinkRef})

		exporter.Send(dataflow.Run{})
		n := c.Int("limit")
		exporter.Send(dataflow.Extract{N: n})

		if timeout := c.Duration("timeout"); timeout > 0 {
			go func() {
				time.Sleep(timeout)
				exporter.Send(dataflow.Stop{})
			}()
		}

		sink.Wait()
		for _, ev := range sink.Events() {
			klog.Infof("%s %s %v", ev.Timestamp.Format(time.RFC3339Nano), ev.Type, ev.Fields)
		}
		klog.Infof("matched %d events", len(sink.Events()))
		return nil
	},
}
