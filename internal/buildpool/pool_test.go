package buildpool

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
	"github.com/lanterndata/lantern-indexd/internal/vectorsource"
)

func handle(n uint64) []byte {
	// any 6-byte value; codec correctness is covered in rowhandle's own tests
	return []byte{byte(n), byte(n >> 8), 0, 0, 0, 0}
}

func TestPool_Run_CompletesAndIndexesAll(t *testing.T) {
	idx, err := hnswindex.New(hnswindex.Config{Dim: 3, Metric: hnswindex.MetricL2Squared, M: 8, EFConstruction: 16, EF: 16}, Width())
	require.NoError(t, err)
	idx.Reserve(6)

	ch := make(chan vectorsource.Batch, 4)
	ch <- vectorsource.Batch{Rows: []vectorsource.Row{
		{Handle: handle(1), Vector: []float32{0, 0, 0}},
		{Handle: handle(2), Vector: []float32{0, 0, 1}},
	}}
	ch <- vectorsource.Batch{Rows: []vectorsource.Row{
		{Handle: handle(3), Vector: []float32{0, 0, 2}},
		{Handle: handle(4), Vector: []float32{0, 0, 3}},
		{Handle: handle(5), Vector: []float32{0, 0, 4}},
		{Handle: handle(6), Vector: []float32{0, 0, 5}},
	}}
	close(ch)

	pool := New(idx, ch, 3, zerolog.Nop())
	require.NoError(t, pool.Run(context.Background()))
	require.Equal(t, 6, idx.Size())
}

func TestPool_Run_FailsOnDimensionMismatch(t *testing.T) {
	idx, err := hnswindex.New(hnswindex.Config{Dim: 0, Metric: hnswindex.MetricL2Squared, M: 8, EFConstruction: 16, EF: 16}, Width())
	require.NoError(t, err)
	idx.Reserve(2)

	ch := make(chan vectorsource.Batch, 1)
	ch <- vectorsource.Batch{Rows: []vectorsource.Row{
		{Handle: handle(1), Vector: []float32{0, 0, 0}},
		{Handle: handle(2), Vector: []float32{0, 0}}, // wrong length
	}}
	close(ch)

	pool := New(idx, ch, 0, zerolog.Nop())
	err = pool.Run(context.Background())

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
