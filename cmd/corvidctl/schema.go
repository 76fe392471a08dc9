package main

import (
	"math/rand"
	"net/netip"
	"time"

	"github.com/corvidlabs/corvid/event"
	"github.com/corvidlabs/corvid/schema"
)

// demoSchema describes the single "conn" record type corvidctl's synthetic
// source and query commands exercise end to end: a small connection-log
// shape (source/destination address and port, duration, byte count)
// similar in spirit to the Bro/Zeek conn.log record the original VAST
// project indexed, without implementing a real Bro reader (out of scope).
func demoSchema() *schema.Schema {
	s := schema.New()
	_ = s.Add(schema.Record("conn",
		schema.F("id.orig_h", schema.Type{Kind: schema.KindAddress}),
		schema.F("id.orig_p", schema.Type{Kind: schema.KindPort}),
		schema.F("id.resp_h", schema.Type{Kind: schema.KindAddress}),
		schema.F("id.resp_p", schema.Type{Kind: schema.KindPort}),
		schema.F("duration", schema.Type{Kind: schema.KindReal}),
		schema.F("orig_bytes", schema.Type{Kind: schema.KindCount}),
		schema.F("proto", schema.Type{Kind: schema.KindString}),
	))
	return s
}

// generateSynthetic produces n synthetic "conn" events starting at start,
// the minimal SOURCE stand-in the specification's ambient-level treatment
// calls for: enough to drive IMPORTER/ARCHIVE/INDEX without a real Bro or
// BGP-dump parser.
func generateSynthetic(n int, start time.Time, r *rand.Rand) []event.Event {
	protos := []string{"tcp", "udp", "icmp"}
	events := make([]event.Event, n)
	for i := 0; i < n; i++ {
		origHost := netip.AddrFrom4([4]byte{10, 0, byte(r.Intn(256)), byte(r.Intn(256))})
		respHost := netip.AddrFrom4([4]byte{198, 51, byte(r.Intn(256)), byte(r.Intn(256))})
		events[i] = event.Event{
			Type:      "conn",
			Timestamp: start.Add(time.Duration(i) * time.Millisecond),
			Fields: map[string]schema.Value{
				"id.orig_h":  {Kind: schema.KindAddress, Addr: origHost},
				"id.orig_p":  {Kind: schema.KindPort, Port: uint16(1024 + r.Intn(60000))},
				"id.resp_h":  {Kind: schema.KindAddress, Addr: respHost},
				"id.resp_p":  {Kind: schema.KindPort, Port: uint16([]int{22, 80, 443, 53}[r.Intn(4)])},
				"duration":   {Kind: schema.KindReal, Real: r.Float64() * 10},
				"orig_bytes": {Kind: schema.KindCount, Count: uint64(r.Intn(1 << 20))},
				"proto":      {Kind: schema.KindString, Str: protos[r.Intn(len(protos))]},
			},
		}
	}
	return events
}
