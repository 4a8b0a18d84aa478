package telemetry

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/terminal-bench/remitter/pkg/messaging"
)

// Recorder writes ledger events to InfluxDB as time-series points. It
// satisfies remitter.EventSink; the underlying write API batches
// asynchronously so recording never blocks ledger operations.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Config holds InfluxDB connection settings
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func NewRecorder(cfg Config) *Recorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
}

// Publish records one ledger event. Unknown payloads are dropped silently;
// telemetry must never fail a ledger operation.
func (r *Recorder) Publish(ctx context.Context, subject string, data interface{}) error {
	event, ok := data.(*messaging.Event)
	if !ok {
		return nil
	}

	switch subject {
	case messaging.SubjectCycleAdvanced:
		payload, err := messaging.ParseEventData[messaging.CycleEvent](event)
		if err != nil {
			return nil
		}
		r.writePoint("cycle", map[string]string{}, map[string]interface{}{
			"cycle":         int64(payload.Cycle),
			"total_payroll": toFloat(payload.TotalPayroll),
			"total_paid":    toFloat(payload.TotalPaid),
		}, event.Timestamp)

	case messaging.SubjectPaymentSent, messaging.SubjectCreditPaid,
		messaging.SubjectCreditAdded, messaging.SubjectDebitAdded:
		payload, err := messaging.ParseEventData[messaging.LedgerEvent](event)
		if err != nil {
			return nil
		}
		r.writePoint("settlement", map[string]string{
			"subject":    subject,
			"contractor": strconv.FormatUint(payload.ContractorID, 10),
		}, map[string]interface{}{
			"amount": toFloat(payload.Amount),
		}, event.Timestamp)

	case messaging.SubjectContractorAdded, messaging.SubjectContractorTerminated:
		payload, err := messaging.ParseEventData[messaging.ContractorEvent](event)
		if err != nil {
			return nil
		}
		r.writePoint("registry", map[string]string{
			"subject": subject,
		}, map[string]interface{}{
			"contractor": int64(payload.ContractorID),
			"per_cycle":  toFloat(payload.PerCycle),
		}, event.Timestamp)
	}

	return nil
}

func (r *Recorder) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	r.writeAPI.WritePoint(influxdb2.NewPoint(measurement, tags, fields, ts))
}

// Close flushes pending points and shuts the client down
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}

func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
