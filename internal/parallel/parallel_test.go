package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForSequential(t *testing.T) {
	cfg := Config{Enabled: false}
	out := make([]int, 100)
	For(100, func(i int) { out[i] = i }, cfg)
	for i, v := range out {
		assert.Equal(t, i, v)
	}
}

func TestForParallelCoversAllIndices(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}
	var hits atomic.Int64
	out := make([]int32, 10000)
	For(len(out), func(i int) {
		atomic.AddInt32(&out[i], 1)
		hits.Add(1)
	}, cfg)

	assert.Equal(t, int64(len(out)), hits.Load())
	for i, v := range out {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestForBelowChunkSizeStaysSequential(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1024}
	// With n below MinChunkSize the callback runs on the calling
	// goroutine, so unsynchronized writes are safe.
	sum := 0
	For(100, func(i int) { sum += i }, cfg)
	assert.Equal(t, 4950, sum)
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: false}
	var pairs [][2]int
	ForBatch(2, 3, func(b, c int) { pairs = append(pairs, [2]int{b, c}) }, cfg)
	assert.Equal(t, [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}, pairs)
}
