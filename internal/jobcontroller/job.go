// Package jobcontroller is the job controller (spec §4.7, C8): it owns the
// job table, listens for insert/update notifications, claims pending jobs,
// and drives a build through the rest of the pipeline.
package jobcontroller

import (
	"time"

	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
)

// Status is a job's lifecycle state (spec §5 state machine).
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Job mirrors a row of lantern_index_jobs.
type Job struct {
	ID             int64
	Table          string
	Column         string
	Operator       string
	IndexName      string
	EFConstruction int
	EF             int
	M              int
	Dim            int
	PQ             bool
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	CanceledAt     *time.Time
	FailureReason  string
}

// Status derives the job's current lifecycle state from its timestamps,
// since the table itself stores only the timestamps, not a status column.
func (j Job) Status() Status {
	switch {
	case j.CanceledAt != nil:
		return StatusCanceled
	case j.FailureReason != "":
		return StatusFailed
	case j.FinishedAt != nil:
		return StatusDone
	case j.StartedAt != nil:
		return StatusRunning
	default:
		return StatusPending
	}
}

// Config builds an hnswindex.Config from the job's stored parameters.
func (j Job) Config() (hnswindex.Config, error) {
	metric, err := metricFromOpClass(j.Operator)
	if err != nil {
		return hnswindex.Config{}, err
	}
	return hnswindex.Config{
		Dim:            j.Dim,
		Metric:         metric,
		M:              j.M,
		EFConstruction: j.EFConstruction,
		EF:             j.EF,
		PQ:             j.PQ,
	}, nil
}

func metricFromOpClass(opClass string) (hnswindex.Metric, error) {
	for _, m := range []hnswindex.Metric{hnswindex.MetricL2Squared, hnswindex.MetricCosine, hnswindex.MetricHamming} {
		oc, err := m.OpClass()
		if err == nil && oc == opClass {
			return m, nil
		}
	}
	return 0, &hnswindex.ConfigError{Field: "operator", Msg: "unknown operator class " + opClass}
}
