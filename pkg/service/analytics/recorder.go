package analytics

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/adapter"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

// Schema is the BigQuery table schema of turn records
var Schema = bigquery.Schema{
	{Name: "session_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "kind", Type: bigquery.StringFieldType, Required: true},
	{Name: "context_used", Type: bigquery.BooleanFieldType},
	{Name: "degraded", Type: bigquery.BooleanFieldType},
	{Name: "source_count", Type: bigquery.IntegerFieldType},
	{Name: "action_type", Type: bigquery.StringFieldType},
	{Name: "latency_ms", Type: bigquery.IntegerFieldType},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
}

// Recorder streams one row per turn into a BigQuery table
type Recorder struct {
	client  adapter.BigQuery
	dataset string
	table   string
}

func New(client adapter.BigQuery, dataset, table string) *Recorder {
	return &Recorder{
		client:  client,
		dataset: dataset,
		table:   table,
	}
}

// Setup creates the table when it does not exist yet
func (x *Recorder) Setup(ctx context.Context) error {
	_, ok, err := x.client.GetTableMetadata(ctx, x.dataset, x.table)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	logging.From(ctx).Info("creating turn table", "dataset", x.dataset, "table", x.table)
	return x.client.CreateTable(ctx, x.dataset, x.table, Schema)
}

func (x *Recorder) Record(ctx context.Context, turn *model.TurnRecord) error {
	if err := x.client.Insert(ctx, x.dataset, x.table, []bigquery.ValueSaver{&row{turn}}); err != nil {
		return goerr.Wrap(err, "failed to record turn", goerr.V("session_id", turn.SessionID))
	}
	return nil
}

type row struct {
	turn *model.TurnRecord
}

// Save implements bigquery.ValueSaver
func (r *row) Save() (map[string]bigquery.Value, string, error) {
	values := map[string]bigquery.Value{
		"session_id":   string(r.turn.SessionID),
		"kind":         string(r.turn.Kind),
		"context_used": r.turn.ContextUsed,
		"degraded":     r.turn.Degraded,
		"source_count": r.turn.SourceCount,
		"latency_ms":   r.turn.LatencyMS,
		"created_at":   r.turn.CreatedAt,
	}
	if r.turn.ActionType != "" {
		values["action_type"] = string(r.turn.ActionType)
	}
	return values, bigquery.NoDedupeID, nil
}
