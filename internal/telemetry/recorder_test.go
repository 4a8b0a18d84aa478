package telemetry

import (
	"context"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/remitter/pkg/messaging"
)

// fakeWriteAPI captures points instead of sending them
type fakeWriteAPI struct {
	points []*write.Point
}

func (f *fakeWriteAPI) WriteRecord(line string)                           {}
func (f *fakeWriteAPI) WritePoint(point *write.Point)                     { f.points = append(f.points, point) }
func (f *fakeWriteAPI) Flush()                                            {}
func (f *fakeWriteAPI) Errors() <-chan error                              { return nil }
func (f *fakeWriteAPI) SetWriteFailedCallback(cb api.WriteFailedCallback) {}

func field(t *testing.T, p *write.Point, key string) interface{} {
	t.Helper()
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	t.Fatalf("field %s not found", key)
	return nil
}

func tag(p *write.Point, key string) string {
	for _, tg := range p.TagList() {
		if tg.Key == key {
			return tg.Value
		}
	}
	return ""
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	newRecorder := func() (*Recorder, *fakeWriteAPI) {
		fake := &fakeWriteAPI{}
		return &Recorder{writeAPI: fake}, fake
	}

	t.Run("should map cycle events to cycle points", func(t *testing.T) {
		r, fake := newRecorder()

		event, err := messaging.NewEvent(messaging.SubjectCycleAdvanced, 4, messaging.CycleEvent{
			Cycle:        2,
			TotalPayroll: "12000",
			TotalPaid:    "9000",
			Increment:    1,
		})
		require.NoError(t, err)
		require.NoError(t, r.Publish(ctx, messaging.SubjectCycleAdvanced, event))

		require.Len(t, fake.points, 1)
		p := fake.points[0]
		assert.Equal(t, "cycle", p.Name())
		assert.Equal(t, int64(2), field(t, p, "cycle"))
		assert.Equal(t, 12000.0, field(t, p, "total_payroll"))
		assert.Equal(t, 9000.0, field(t, p, "total_paid"))
	})

	t.Run("should map payments to settlement points", func(t *testing.T) {
		r, fake := newRecorder()

		event, err := messaging.NewEvent(messaging.SubjectPaymentSent, 5, messaging.LedgerEvent{
			ContractorID: 1,
			Amount:       "9000",
			To:           "0xbebis",
		})
		require.NoError(t, err)
		require.NoError(t, r.Publish(ctx, messaging.SubjectPaymentSent, event))

		require.Len(t, fake.points, 1)
		p := fake.points[0]
		assert.Equal(t, "settlement", p.Name())
		assert.Equal(t, messaging.SubjectPaymentSent, tag(p, "subject"))
		assert.Equal(t, "1", tag(p, "contractor"))
		assert.Equal(t, 9000.0, field(t, p, "amount"))
	})

	t.Run("should map registry events to registry points", func(t *testing.T) {
		r, fake := newRecorder()

		event, err := messaging.NewEvent(messaging.SubjectContractorAdded, 1, messaging.ContractorEvent{
			ContractorID: 1,
			Name:         "bebis",
			Wallet:       "0xbebis",
			PerCycle:     "6000",
		})
		require.NoError(t, err)
		require.NoError(t, r.Publish(ctx, messaging.SubjectContractorAdded, event))

		require.Len(t, fake.points, 1)
		p := fake.points[0]
		assert.Equal(t, "registry", p.Name())
		assert.Equal(t, 6000.0, field(t, p, "per_cycle"))
	})

	t.Run("should drop non-event payloads", func(t *testing.T) {
		r, fake := newRecorder()

		require.NoError(t, r.Publish(ctx, messaging.SubjectCycleAdvanced, "not an event"))
		assert.Empty(t, fake.points)
	})

	t.Run("should ignore config events", func(t *testing.T) {
		r, fake := newRecorder()

		event, err := messaging.NewEvent(messaging.SubjectConfigChanged, 2, messaging.ConfigEvent{
			Field: "maxSalary",
			Value: "20000",
		})
		require.NoError(t, err)
		require.NoError(t, r.Publish(ctx, messaging.SubjectConfigChanged, event))
		assert.Empty(t, fake.points)
	})
}
