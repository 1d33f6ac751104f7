package hnswindex

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{Dim: 3, Metric: MetricCosine, M: 10, EFConstruction: 32, EF: 32}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Dim: 3, Metric: MetricCosine, M: 1, EFConstruction: 32, EF: 32}, 4)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "m", cfgErr.Field)
}

// TestCompleteness is P2: a successful build over N distinct labels
// produces an index of size exactly N.
func TestCompleteness(t *testing.T) {
	idx, err := New(validConfig(), 4)
	require.NoError(t, err)
	idx.Reserve(3)

	require.NoError(t, idx.Insert(0, 1, []float32{0, 0, 0}))
	require.NoError(t, idx.Insert(0, 2, []float32{0, 0, 1}))
	require.NoError(t, idx.Insert(0, 3, []float32{0, 0, 4}))

	require.Equal(t, 3, idx.Size())
}

func TestInsert_ConcurrentDistinctSlots(t *testing.T) {
	const width = 8
	const perSlot = 200

	idx, err := New(validConfig(), width)
	require.NoError(t, err)
	idx.Reserve(width * perSlot)

	var wg sync.WaitGroup
	for slot := 0; slot < width; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for i := 0; i < perSlot; i++ {
				label := uint64(slot*perSlot + i)
				vec := []float32{float32(i), float32(slot), 1}
				if err := idx.Insert(slot, label, vec); err != nil {
					t.Errorf("insert: %v", err)
				}
			}
		}(slot)
	}
	wg.Wait()

	require.Equal(t, width*perSlot, idx.Size())
}

func TestInsert_BeyondCapacityPanics(t *testing.T) {
	idx, err := New(validConfig(), 1)
	require.NoError(t, err)
	idx.Reserve(1)
	require.NoError(t, idx.Insert(0, 1, []float32{0, 0, 0}))

	require.Panics(t, func() {
		_ = idx.Insert(0, 2, []float32{0, 0, 0})
	})
}

func TestSave_WritesFileAndIsSingleUse(t *testing.T) {
	idx, err := New(validConfig(), 1)
	require.NoError(t, err)
	idx.Reserve(2)
	require.NoError(t, idx.Insert(0, 1, []float32{0, 0, 0}))
	require.NoError(t, idx.Insert(0, 2, []float32{0, 0, 1}))

	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, idx.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	require.Error(t, idx.Save(path))
}
