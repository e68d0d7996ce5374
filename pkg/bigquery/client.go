package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// jobLabels tag every query job so BigQuery billing can be split per component.
var jobLabels = map[string]string{"component": "revenue-engine"}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is the revenue dataset handle: inserts into the transactions table,
// parameterized reads and bootstrap DDL.
type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	location  string
	tables    []string
}

// NewClient opens the dataset and fails fast when it or any configured table is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	c, err := Open(ctx, gcp, cfg)
	if err != nil {
		return nil, err
	}
	if len(c.tables) == 0 {
		_ = c.Close()
		return nil, errTableNameRequired
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": cfg.Dataset, "tables": c.tables}), "bigquery client initialized")
	}
	return c, nil
}

// Open creates the client without metadata checks, for bootstrap tooling.
func Open(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	bq.Location = strings.TrimSpace(cfg.Location)

	return &Client{
		client:    bq,
		dataset:   bq.Dataset(datasetID),
		projectID: projectID,
		location:  bq.Location,
		tables:    configuredTables(cfg),
	}, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// configuredTables lists the tables the engine reads or writes; the sessions
// table is optional.
func configuredTables(cfg config.BigQueryConfig) []string {
	var tables []string
	for _, name := range []string{cfg.TransactionsTable, cfg.SessionsTable} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			tables = append(tables, trimmed)
		}
	}
	return tables
}

// Ping checks the dataset and every configured table concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.dataset.Metadata(gctx)
		return describe("dataset", c.dataset.DatasetID, err)
	})
	for _, name := range c.tables {
		g.Go(func() error {
			_, err := c.dataset.Table(name).Metadata(gctx)
			return describe("table", name, err)
		})
	}
	return g.Wait()
}

// InsertRows streams rows into table. Per-row rejections are folded into one
// error that reports how many rows failed and the first reason.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}

	err := c.dataset.Table(name).Inserter().Put(ctx, rows)
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		return fmt.Errorf("insert into %s: %d of %d rows rejected: %w", name, len(multi), len(rows), err)
	}
	return err
}

// RowIterator is the read surface of *bigquery.RowIterator.
type RowIterator interface {
	Next(dst any) error
}

// Query runs a parameterized statement in the dataset location.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	q.Labels = jobLabels
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// TableRef renders the backtick-quoted project.dataset.table used in SQL.
func (c *Client) TableRef(table string) string {
	name := strings.TrimSpace(table)
	if c == nil || c.dataset == nil {
		return "`" + name + "`"
	}
	return "`" + c.projectID + "." + c.dataset.DatasetID + "." + name + "`"
}

// EnsureDataset creates the dataset in location when missing and reports
// whether it did. An empty location falls back to the configured one.
func (c *Client) EnsureDataset(ctx context.Context, location string) (bool, error) {
	if c == nil || c.dataset == nil {
		return false, errClientNotInitialized
	}
	if strings.TrimSpace(location) == "" {
		location = c.location
	}
	return ensure(ctx, "dataset", c.dataset.DatasetID,
		func(ctx context.Context) error { _, err := c.dataset.Metadata(ctx); return err },
		func(ctx context.Context) error {
			return c.dataset.Create(ctx, &bigquery.DatasetMetadata{Location: location})
		})
}

// EnsureTable creates table from meta when missing and reports whether it did.
func (c *Client) EnsureTable(ctx context.Context, table string, meta *bigquery.TableMetadata) (bool, error) {
	if c == nil || c.dataset == nil {
		return false, errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return false, errTableNameRequired
	}
	ref := c.dataset.Table(name)
	return ensure(ctx, "table", name,
		func(ctx context.Context) error { _, err := ref.Metadata(ctx); return err },
		func(ctx context.Context) error { return ref.Create(ctx, meta) })
}

func ensure(ctx context.Context, kind, name string, lookup, create func(context.Context) error) (bool, error) {
	err := lookup(ctx)
	switch {
	case err == nil:
		return false, nil
	case !isNotFound(err):
		return false, fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
	if err := create(ctx); err != nil {
		return false, fmt.Errorf("creating %s %q: %w", kind, name, err)
	}
	return true, nil
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
