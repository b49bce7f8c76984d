package queue

import (
	"context"
	"math"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/survey-sim/internal/protocol"
)

type fakeWriter struct {
	writes [][]kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.writes = append(w.writes, msgs)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishRunsSingleWrite(t *testing.T) {
	a, _ := record(t)
	b, _ := record(t)
	b.Config.Policy = "priority"

	w := &fakeWriter{}
	p := &Producer{writer: w}
	require.NoError(t, p.PublishRuns(context.Background(), []*protocol.RunRecord{a, b}))

	require.Len(t, w.writes, 1)
	msgs := w.writes[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "rotation", string(msgs[0].Key))
	assert.Equal(t, "priority", string(msgs[1].Key))

	got, err := protocol.DecodeRunRecord(msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, b.RunID, got.RunID)
}

func TestPublishRunsEncodeFailureSendsNothing(t *testing.T) {
	good, _ := record(t)
	bad, _ := record(t)
	bad.Annual.AvgPOD.Mean = math.NaN()

	w := &fakeWriter{}
	p := &Producer{writer: w}
	err := p.PublishRuns(context.Background(), []*protocol.RunRecord{good, bad})
	assert.ErrorContains(t, err, "failed to encode run record")
	assert.Empty(t, w.writes)

	require.NoError(t, p.PublishRuns(context.Background(), nil))
	assert.Empty(t, w.writes)
}

func TestPublishRunKeyedByPolicy(t *testing.T) {
	rec, _ := record(t)
	w := &fakeWriter{}
	p := &Producer{writer: w}
	require.NoError(t, p.PublishRun(context.Background(), rec))

	require.Len(t, w.writes, 1)
	require.Len(t, w.writes[0], 1)
	assert.Equal(t, "rotation", string(w.writes[0][0].Key))
}
