package main

import (
	"fmt"
	"path/filepath"

	"github.com/corvidlabs/corvid/accountant"
	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/chunkstore"
	"github.com/corvidlabs/corvid/dataflow"
	"github.com/corvidlabs/corvid/engineconfig"
)

// engine bundles the actors a root data directory's archive+index pair
// needs wired together, shared by the ingest and query subcommands.
type engine struct {
	cfg     engineconfig.Config
	store   *chunkstore.Archive
	archive *actorkit.Ref
	index   *actorkit.Ref
	acctRef *actorkit.Ref
	rootDir string
}

func openEngine(root string, cfg engineconfig.Config) (*engine, error) {
	store, err := chunkstore.Open(filepath.Join(root, "archive"), cfg.MaxSegmentSize, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("corvidctl: open archive: %w", err)
	}
	archiveRef := dataflow.SpawnArchive(store)
	indexRef, err := dataflow.SpawnIndex(filepath.Join(root, "index"), cfg.TimeGranularity)
	if err != nil {
		return nil, fmt.Errorf("corvidctl: open index: %w", err)
	}
	acctRef := accountant.Spawn()
	archiveRef.Send(dataflow.Put{Role: dataflow.RoleAccountant, Actor: acctRef})
	indexRef.Send(dataflow.Put{Role: dataflow.RoleAccountant, Actor: acctRef})

	return &engine{cfg: cfg, store: store, archive: archiveRef, index: indexRef, acctRef: acctRef, rootDir: root}, nil
}

// flush drains IMPORTER-less direct flush requests against archive and
// index, used after a bounded ingest run and before a clean exit.
func (e *engine) flush() {
	task := actorkit.NewTask("archive", "index")
	e.archive.Send(dataflow.Flush{Task: task, ID: "archive"})
	e.index.Send(dataflow.Flush{Task: task, ID: "index"})
	<-task.Done()
}

func (e *engine) stop() {
	e.archive.Send(dataflow.Stop{})
}
