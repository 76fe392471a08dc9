package main

import (
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"k8s.io/klog/v2"

	"github.com/corvidlabs/corvid/dataflow"
	"github.com/corvidlabs/corvid/engineconfig"
)

var ingestCmd = &cli.Command{
	Name:      "ingest",
	Usage:     "generate and ingest a synthetic event stream into an archive+index pair",
	ArgsUsage: "<dir>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Value: 100000, Usage: "number of synthetic events to ingest"},
		&cli.IntFlag{Name: "chunk-size", Value: 0, Usage: "override the configured chunk size"},
		&cli.Int64Flag{Name: "seed", Value: 1, Usage: "synthetic generator PRNG seed"},
	},
	Action: func(c *cli.Context) error {
		root := c.Args().First()
		if root == "" {
			return cli.Exit("missing <dir> argument", 1)
		}
		cfg := engineconfig.Default()
		if n := c.Int("chunk-size"); n > 0 {
			cfg.ChunkSize = n
		}

		e, err := openEngine(root, cfg)
		if err != nil {
			return err
		}

		importer := dataflow.SpawnImporter(0, cfg.ChunkSize, cfg.HighWatermark, cfg.LowWatermark)
		importer.Send(dataflow.Put{Role: dataflow.RoleArchive, Actor: e.archive})
		importer.Send(dataflow.Put{Role: dataflow.RoleIndex, Actor: e.index})
		importer.Send(dataflow.Put{Role: dataflow.RoleAccountant, Actor: e.acctRef})

		count := c.Int("count")
		p := mpb.NewWithContext(c.Context)
		bar := p.AddBar(int64(count),
			mpb.PrependDecorators(decor.Name("ingest")),
			mpb.AppendDecorators(decor.Percentage()),
		)

		r := rand.New(rand.NewSource(c.Int64("seed")))
		const batchSize = 1000
		start := time.Now()
		for remaining := count; remaining > 0; {
			n := batchSize
			if n > remaining {
				n = remaining
			}
			events := generateSynthetic(n, start, r)
			importer.Send(dataflow.Submit{Events: events})
			remaining -= n
			bar.IncrBy(n)
		}
		p.Wait()

		e.flush()
		e.stop()

		klog.Infof("ingested %s events in %s", humanize.Comma(int64(count)), time.Since(start))
		return nil
	},
}
