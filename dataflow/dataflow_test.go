package dataflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/chunkstore"
	"github.com/corvidlabs/corvid/event"
	"github.com/corvidlabs/corvid/exprengine"
	"github.com/corvidlabs/corvid/schema"
)

func newConnType() schema.Type {
	return schema.Record("conn",
		schema.F("resp_p", schema.Type{Kind: schema.KindPort}),
		schema.F("service", schema.Type{Kind: schema.KindString}),
	)
}

func connEvent(port uint16, service string, ts time.Time) event.Event {
	return event.Event{
		Type:      "conn",
		Timestamp: ts,
		Fields: map[string]schema.Value{
			"resp_p":  {Kind: schema.KindPort, Port: port},
			"service": {Kind: schema.KindString, Str: service},
		},
	}
}

// flushSync drives a blocking Flush round-trip through an actorkit.Task,
// the same barrier mechanism IMPORTER uses internally to fan its own
// Flush out to ARCHIVE and INDEX.
func flushSync(t *testing.T, imp *actorkit.Ref) {
	t.Helper()
	task := actorkit.NewTask("flush")
	imp.Send(Flush{Task: task, ID: "flush"})
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flush")
	}
}

// TestEndToEndQueryExtractsMatchingEvents is spec.md §8 scenario 5: ingest
// a log, run a conjunctive query, and confirm the exporter extracts
// exactly the matching events with no duplicates.
func TestEndToEndQueryExtractsMatchingEvents(t *testing.T) {
	store, err := chunkstore.Open(t.TempDir(), 1<<20, 16)
	require.NoError(t, err)

	arch := SpawnArchive(store)
	idx, err := SpawnIndex("", time.Hour)
	require.NoError(t, err)
	imp := SpawnImporter(0, 10, 1<<20, 0)
	imp.Send(Put{Role: RoleArchive, Actor: arch})
	imp.Send(Put{Role: RoleIndex, Actor: idx})

	base := time.Now()
	const total = 113
	const matchPort = 995
	expectedMatches := 0
	events := make([]event.Event, 0, total)
	for i := 0; i < total; i++ {
		port := uint16(80)
		service := "http"
		if i%7 == 0 {
			port = matchPort
			service = "ssl"
			if i%2 == 0 {
				service = "ssl.mozilla"
				expectedMatches++
			}
		}
		events = append(events, connEvent(port, service, base.Add(time.Duration(i)*time.Second)))
	}
	imp.Send(Submit{Events: events})

	flushSync(t, imp)

	sch := schema.New()
	require.NoError(t, sch.Add(newConnType()))

	expr := exprengine.And(
		exprengine.Pred(exprengine.Extractor{Kind: exprengine.SchemaExtractor, Name: "resp_p"}, bitmapindex.Eq, schema.Value{Kind: schema.KindPort, Port: matchPort}),
		exprengine.Pred(exprengine.Extractor{Kind: exprengine.SchemaExtractor, Name: "service"}, bitmapindex.In, schema.Value{Kind: schema.KindString, Str: "mozilla"}),
	)
	expr = exprengine.ResolveSchema(expr, sch.Types()[0])

	sink := NewCollectingSink()
	sinkRef := SpawnSink(sink)

	exp := SpawnExporter(sch, expr, nil)
	exp.Send(Put{Role: RoleArchive, Actor: arch})
	exp.Send(Put{Role: RoleIndex, Actor: idx})
	exp.Send(Put{Role: RoleSink, Actor: sinkRef})
	exp.Send(Run{})
	exp.Send(Extract{N: 0})

	sink.Wait()

	got := sink.Events()
	require.Equal(t, expectedMatches, len(got))

	seen := make(map[event.ID]bool)
	for _, ev := range got {
		require.False(t, seen[ev.ID], "duplicate event id %d delivered", ev.ID)
		seen[ev.ID] = true
		require.Equal(t, uint16(matchPort), ev.Fields["resp_p"].Port)
		require.Contains(t, ev.Fields["service"].Str, "mozilla")
	}
}

// TestExporterBoundedExtractionHaltsAtDemand exercises spec.md §8 scenario
// 6's demand-driven extraction rule: Extract(n) must produce no more than
// n matching events until further demand is signaled, and a subsequent
// Stop completes the query without further events flowing.
func TestExporterBoundedExtractionHaltsAtDemand(t *testing.T) {
	store, err := chunkstore.Open(t.TempDir(), 1<<20, 16)
	require.NoError(t, err)

	arch := SpawnArchive(store)
	idx, err := SpawnIndex("", time.Hour)
	require.NoError(t, err)
	imp := SpawnImporter(0, 50, 1<<20, 0)
	imp.Send(Put{Role: RoleArchive, Actor: arch})
	imp.Send(Put{Role: RoleIndex, Actor: idx})

	base := time.Now()
	events := make([]event.Event, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, connEvent(995, "ssl", base.Add(time.Duration(i)*time.Second)))
	}
	imp.Send(Submit{Events: events})
	flushSync(t, imp)

	sch := schema.New()
	require.NoError(t, sch.Add(newConnType()))
	expr := exprengine.Pred(exprengine.Extractor{Kind: exprengine.SchemaExtractor, Name: "resp_p"}, bitmapindex.Eq, schema.Value{Kind: schema.KindPort, Port: 995})
	expr = exprengine.ResolveSchema(expr, sch.Types()[0])

	sink := NewCollectingSink()
	sinkRef := SpawnSink(sink)

	exp := SpawnExporter(sch, expr, nil)
	exp.Send(Put{Role: RoleArchive, Actor: arch})
	exp.Send(Put{Role: RoleIndex, Actor: idx})
	exp.Send(Put{Role: RoleSink, Actor: sinkRef})
	exp.Send(Run{})
	exp.Send(Extract{N: 5})

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 5
	}, time.Second, time.Millisecond)

	// Demand is exhausted; give the actor a moment to prove it does not
	// overrun before issuing Stop.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 5, len(sink.Events()))

	exp.Send(Stop{})
	sink.Wait()
	require.Equal(t, 5, len(sink.Events()))
}
