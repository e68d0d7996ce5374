package bigquery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/revenue-engine/pkg/config"
)

func TestConfiguredTables(t *testing.T) {
	require.Equal(t, []string{"revenue_transactions"}, configuredTables(config.BigQueryConfig{
		TransactionsTable: " revenue_transactions ",
	}))
	require.Equal(t, []string{"tx", "sessions"}, configuredTables(config.BigQueryConfig{
		TransactionsTable: "tx",
		SessionsTable:     "sessions",
	}))
}

func TestClientOptions(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"dummy": "value"}`, ApplicationCredentials: "/tmp/creds"}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestTableRefWithoutDataset(t *testing.T) {
	var c *Client
	require.Equal(t, "`sessions`", c.TableRef(" sessions "))
}

func TestOpenRequiresProjectAndDataset(t *testing.T) {
	_, err := Open(context.Background(), config.GCPConfig{}, config.BigQueryConfig{Dataset: "revenue"})
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = Open(context.Background(), config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: " "})
	require.ErrorIs(t, err, errDatasetRequired)
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	ctx := context.Background()

	_, err := c.EnsureTable(ctx, "revenue_transactions", nil)
	require.ErrorIs(t, err, errClientNotInitialized)
	_, err = c.EnsureDataset(ctx, "US")
	require.ErrorIs(t, err, errClientNotInitialized)
	require.ErrorIs(t, c.Ping(ctx), errClientNotInitialized)
	require.ErrorIs(t, c.InsertRows(ctx, "t", []any{1}), errClientNotInitialized)
	require.NoError(t, c.Close())
}

func TestEnsure(t *testing.T) {
	ctx := context.Background()
	notFound := &googleapi.Error{Code: http.StatusNotFound}
	created := 0
	create := func(context.Context) error { created++; return nil }

	ok, err := ensure(ctx, "table", "t", func(context.Context) error { return nil }, create)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, created)

	ok, err = ensure(ctx, "table", "t", func(context.Context) error { return notFound }, create)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, created)

	_, err = ensure(ctx, "table", "t", func(context.Context) error { return errors.New("denied") }, create)
	require.ErrorContains(t, err, `checking table "t"`)

	_, err = ensure(ctx, "dataset", "d", func(context.Context) error { return notFound },
		func(context.Context) error { return errors.New("quota") })
	require.ErrorContains(t, err, `creating dataset "d"`)
}

func TestDescribe(t *testing.T) {
	require.NoError(t, describe("table", "t", nil))
	err := describe("table", "t", &googleapi.Error{Code: http.StatusNotFound})
	require.True(t, strings.Contains(err.Error(), `table "t" does not exist`))
	cause := errors.New("boom")
	require.ErrorIs(t, describe("dataset", "d", cause), cause)
}
