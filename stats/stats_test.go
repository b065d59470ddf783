package stats_test

import (
	"sync"
	"testing"

	"github.com/gurion-rock/mics/stats"
	"github.com/stretchr/testify/assert"
)

func TestFolder_Concurrent(t *testing.T) {
	t.Parallel()

	folder := stats.New()

	var wg sync.WaitGroup

	for range 10 {
		wg.Go(func() {
			for range 100 {
				folder.Tick()
				folder.AddDetected(2)
				folder.AddTracked(3)
				folder.AddLandmarks(1)
			}
		})
	}

	wg.Wait()

	assert.Equal(t, stats.Snapshot{
		SystemRuntime:      1000,
		NumDetectedObjects: 2000,
		NumTrackedObjects:  3000,
		NumLandmarks:       1000,
	}, folder.Snapshot())
}
