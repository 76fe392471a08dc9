package engineconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedConstants(t *testing.T) {
	c := Default()
	require.Equal(t, 128, c.ChunkSize)
	require.Equal(t, 8, c.HighWatermark)
	require.Equal(t, 2, c.LowWatermark)
	require.Equal(t, 64, c.CacheSize)
	require.Equal(t, uint64(256*1024*1024), c.MaxSegmentSize)
	require.Equal(t, time.Second, c.TimeGranularity)
	require.Equal(t, 5*time.Second, c.SyncInterval)
}

func TestOptionsApplyOverDefaults(t *testing.T) {
	c := New(
		ChunkSize(64),
		Watermarks(10, 3),
		CacheSize(128),
		MaxSegmentSize(1<<20),
		TimeGranularity(time.Minute),
		SyncInterval(30*time.Second),
	)

	require.Equal(t, Config{
		ChunkSize:       64,
		HighWatermark:   10,
		LowWatermark:    3,
		CacheSize:       128,
		MaxSegmentSize:  1 << 20,
		TimeGranularity: time.Minute,
		SyncInterval:    30 * time.Second,
	}, c)
}

func TestLaterOptionsWinOnConflict(t *testing.T) {
	c := New(ChunkSize(64), ChunkSize(256))
	require.Equal(t, 256, c.ChunkSize)
}
