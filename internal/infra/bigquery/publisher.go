// Package bigquery mirrors persisted entity files into BigQuery tables, one
// table per entity, truncated and reloaded on every publish.
package bigquery

import (
	"bytes"
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/table"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryPublisher loads entity files into a dataset. It holds a shared
// BigQuery client to avoid creating a new connection for each table.
type BigQueryPublisher struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryPublisher creates a publisher for projectID.dataset.
func NewBigQueryPublisher(ctx context.Context, projectID, dataset string, opts ...option.ClientOption) (*BigQueryPublisher, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryPublisher: creating client: %w", err)
	}
	return &BigQueryPublisher{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (p *BigQueryPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// PublishFile delegates to PublishFileWithClient with the shared client.
func (p *BigQueryPublisher) PublishFile(ctx context.Context, s *table.Schema, f format.Format, data []byte, runID string) error {
	return PublishFileWithClient(ctx, p.client, p.dataset, s, f, data, runID)
}

// PublishURI delegates to PublishURIWithClient with the shared client.
func (p *BigQueryPublisher) PublishURI(ctx context.Context, s *table.Schema, f format.Format, uri string, runID string) error {
	return PublishURIWithClient(ctx, p.client, p.dataset, s, f, uri, runID)
}

// RowCount delegates to RowCountWithClient with the shared client.
func (p *BigQueryPublisher) RowCount(ctx context.Context, entity string) (int64, error) {
	return RowCountWithClient(ctx, p.client, p.dataset, entity)
}

// PublishFileWithClient replaces the entity table with file contents read from storage.
func PublishFileWithClient(ctx context.Context, client *bigquery.Client, dataset string, s *table.Schema, f format.Format, data []byte, runID string) error {
	src := bigquery.NewReaderSource(bytes.NewReader(data))
	if err := configureSource(&src.FileConfig, s, f); err != nil {
		return fmt.Errorf("PublishFile: %w", err)
	}
	if err := runLoad(ctx, client.Dataset(dataset).Table(s.Entity).LoaderFrom(src), s.Entity, runID); err != nil {
		return fmt.Errorf("PublishFile %s: %w", s.Entity, err)
	}
	return nil
}

// PublishURIWithClient replaces the entity table with a gs:// object, which
// BigQuery reads directly.
func PublishURIWithClient(ctx context.Context, client *bigquery.Client, dataset string, s *table.Schema, f format.Format, uri string, runID string) error {
	src := bigquery.NewGCSReference(uri)
	if err := configureSource(&src.FileConfig, s, f); err != nil {
		return fmt.Errorf("PublishURI: %w", err)
	}
	if err := runLoad(ctx, client.Dataset(dataset).Table(s.Entity).LoaderFrom(src), s.Entity, runID); err != nil {
		return fmt.Errorf("PublishURI %s: %w", s.Entity, err)
	}
	return nil
}

func runLoad(ctx context.Context, loader *bigquery.Loader, entity, runID string) error {
	log := logger.FromContext(ctx)

	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.JobID = jobID(entity, runID)

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("run load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	log.Debug().Str("job_id", job.ID()).Str("entity", entity).Msg("BigQuery load job finished")
	return nil
}

// RowCountWithClient counts the rows of an entity table.
func RowCountWithClient(ctx context.Context, client *bigquery.Client, dataset, entity string) (int64, error) {
	q := client.Query(fmt.Sprintf("SELECT COUNT(*) AS row_count FROM `%s.%s.%s`", client.Project(), dataset, entity))

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("RowCount %s: query read: %w", entity, err)
	}

	var row struct {
		RowCount int64 `bigquery:"row_count"`
	}
	for {
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("RowCount %s: iter next: %w", entity, err)
		}
	}
	return row.RowCount, nil
}
