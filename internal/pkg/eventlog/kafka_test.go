package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type recordingWriter struct {
	records []*kgo.Record
	err     error
}

func (w *recordingWriter) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		w.records = append(w.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: w.err})
	}
	return out
}

func TestAppend_WritesKeyedJSON(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducer(w, "payroll.audit", time.Second, nil)

	err := p.Append(context.Background(), "run-1", "approve", map[string]string{"to": "MANAGER_APPROVED"})
	require.NoError(t, err)

	require.Len(t, w.records, 1)
	rec := w.records[0]
	assert.Equal(t, "payroll.audit", rec.Topic)
	assert.Equal(t, []byte("run-1"), rec.Key)
	assert.JSONEq(t, `{"to":"MANAGER_APPROVED"}`, string(rec.Value))
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "approve", string(rec.Headers[0].Value))
}

func TestAppend_ProduceError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewProducer(&recordingWriter{err: boom}, "payroll.audit", 0, nil)

	err := p.Append(context.Background(), "run-1", "approve", struct{}{})
	assert.ErrorIs(t, err, boom)
}

func TestAppend_MarshalError(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducer(w, "payroll.audit", 0, nil)

	err := p.Append(context.Background(), "run-1", "approve", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, w.records)
}
