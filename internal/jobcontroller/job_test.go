package jobcontroller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
)

func TestJob_Status(t *testing.T) {
	now := time.Unix(0, 0)

	require.Equal(t, StatusPending, Job{}.Status())
	require.Equal(t, StatusRunning, Job{StartedAt: &now}.Status())
	require.Equal(t, StatusDone, Job{StartedAt: &now, FinishedAt: &now}.Status())
	require.Equal(t, StatusFailed, Job{StartedAt: &now, FinishedAt: &now, FailureReason: "boom"}.Status())
	require.Equal(t, StatusCanceled, Job{StartedAt: &now, FinishedAt: &now, CanceledAt: &now}.Status())
}

func TestJob_Config(t *testing.T) {
	j := Job{Operator: "dist_cos_ops", M: 16, EFConstruction: 128, EF: 64, Dim: 384}
	cfg, err := j.Config()
	require.NoError(t, err)
	require.Equal(t, hnswindex.MetricCosine, cfg.Metric)
	require.Equal(t, 16, cfg.M)

	_, err = Job{Operator: "not_a_real_ops"}.Config()
	require.Error(t, err)
}
