package adapter

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
)

// BigQuery is an interface for the BigQuery operations used by turn analytics
type BigQuery interface {
	// GetTableMetadata retrieves the metadata of a table. Returns ok=false if the table does not exist.
	GetTableMetadata(ctx context.Context, datasetID, table string) (*bigquery.TableMetadata, bool, error)

	// CreateTable creates a table with the given schema
	CreateTable(ctx context.Context, datasetID, table string, schema bigquery.Schema) error

	// Insert streams rows into a table
	Insert(ctx context.Context, datasetID, table string, rows []bigquery.ValueSaver) error

	Close() error
}

type bigqueryClient struct {
	client *bigquery.Client
}

// NewBigQuery creates a new BigQuery client
func NewBigQuery(ctx context.Context, projectID string) (BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project_id", projectID))
	}

	return &bigqueryClient{client: client}, nil
}

func (bq *bigqueryClient) GetTableMetadata(ctx context.Context, datasetID, table string) (*bigquery.TableMetadata, bool, error) {
	metadata, err := bq.client.Dataset(datasetID).Table(table).Metadata(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, goerr.Wrap(err, "failed to get table metadata",
			goerr.V("dataset", datasetID),
			goerr.V("table", table))
	}

	return metadata, true, nil
}

func (bq *bigqueryClient) CreateTable(ctx context.Context, datasetID, table string, schema bigquery.Schema) error {
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "created_at",
		},
	}
	if err := bq.client.Dataset(datasetID).Table(table).Create(ctx, meta); err != nil {
		return goerr.Wrap(err, "failed to create table",
			goerr.V("dataset", datasetID),
			goerr.V("table", table))
	}
	return nil
}

func (bq *bigqueryClient) Insert(ctx context.Context, datasetID, table string, rows []bigquery.ValueSaver) error {
	inserter := bq.client.Dataset(datasetID).Table(table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert rows",
			goerr.V("dataset", datasetID),
			goerr.V("table", table),
			goerr.V("count", len(rows)))
	}
	return nil
}

func (bq *bigqueryClient) Close() error {
	if err := bq.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close BigQuery client")
	}
	return nil
}
