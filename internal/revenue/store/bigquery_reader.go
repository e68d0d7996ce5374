package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	pkgbigquery "github.com/angelmondragon/revenue-engine/pkg/bigquery"
	"github.com/angelmondragon/revenue-engine/pkg/pagination"
	"google.golang.org/api/iterator"
)

type querier interface {
	Query(ctx context.Context, sql string, params []cbigquery.QueryParameter) (pkgbigquery.RowIterator, error)
	TableRef(table string) string
}

// BigQueryReader materializes the resolved view per query with a window
// function over the append-only table.
type BigQueryReader struct {
	client querier
	table  string
}

var _ Reader = (*BigQueryReader)(nil)

func NewBigQueryReader(client querier, table string) (*BigQueryReader, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("transactions table is required")
	}
	return &BigQueryReader{client: client, table: table}, nil
}

const resolvedCTE = `WITH resolved AS (
  SELECT * EXCEPT (rn) FROM (
    SELECT t.*, ROW_NUMBER() OVER (PARTITION BY tenant_id, transaction_id ORDER BY synced_at DESC) AS rn
    FROM %s AS t
    WHERE tenant_id = @tenant_id
  )
  WHERE rn = 1
)
`

const selectColumns = `tenant_id, transaction_id, provider, type, status, amount, currency,
  original_amount, original_currency, profile_id, session_id, product_id, product_name,
  metadata, created, synced_at`

// buildQuery renders the resolved view with filters applied after resolution.
func (r *BigQueryReader) buildQuery(f Filter, projection, suffix string) (string, []cbigquery.QueryParameter) {
	params := []cbigquery.QueryParameter{{Name: "tenant_id", Value: f.TenantID}}
	var where []string
	if !f.Start.IsZero() {
		where = append(where, "created >= @start")
		params = append(params, cbigquery.QueryParameter{Name: "start", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		where = append(where, "created < @end")
		params = append(params, cbigquery.QueryParameter{Name: "end", Value: f.End.UTC()})
	}
	if len(f.Types) > 0 {
		txTypes := make([]string, len(f.Types))
		for i, t := range f.Types {
			txTypes[i] = string(t)
		}
		where = append(where, "type IN UNNEST(@types)")
		params = append(params, cbigquery.QueryParameter{Name: "types", Value: txTypes})
	}
	if f.Status != "" {
		where = append(where, "status = @status")
		params = append(params, cbigquery.QueryParameter{Name: "status", Value: string(f.Status)})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, resolvedCTE, r.client.TableRef(r.table))
	sb.WriteString("SELECT ")
	sb.WriteString(projection)
	sb.WriteString("\nFROM resolved")
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if suffix != "" {
		sb.WriteString("\n")
		sb.WriteString(suffix)
	}
	return sb.String(), params
}

func (r *BigQueryReader) Resolved(ctx context.Context, f Filter) ([]types.Transaction, error) {
	sql, params := r.buildQuery(f, selectColumns, "ORDER BY created DESC, transaction_id DESC")
	return r.readRows(ctx, sql, params)
}

func (r *BigQueryReader) Page(ctx context.Context, f Filter, page pagination.Params) ([]types.Transaction, int, error) {
	page = page.Normalize()

	countSQL, countParams := r.buildQuery(f, "COUNT(*) AS total", "")
	it, err := r.client.Query(ctx, countSQL, countParams)
	if err != nil {
		return nil, 0, fmt.Errorf("count resolved transactions: %w", err)
	}
	var count struct {
		Total int64 `bigquery:"total"`
	}
	if err := it.Next(&count); err != nil && !errors.Is(err, iterator.Done) {
		return nil, 0, fmt.Errorf("read transaction count: %w", err)
	}

	sql, params := r.buildQuery(f, selectColumns, "ORDER BY created DESC, transaction_id DESC\nLIMIT @limit OFFSET @offset")
	params = append(params,
		cbigquery.QueryParameter{Name: "limit", Value: int64(page.Take)},
		cbigquery.QueryParameter{Name: "offset", Value: int64(page.Skip)},
	)
	rows, err := r.readRows(ctx, sql, params)
	if err != nil {
		return nil, 0, err
	}
	return rows, int(count.Total), nil
}

func (r *BigQueryReader) readRows(ctx context.Context, sql string, params []cbigquery.QueryParameter) ([]types.Transaction, error) {
	it, err := r.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query resolved transactions: %w", err)
	}

	var out []types.Transaction
	for {
		var row transactionRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read transaction row: %w", err)
		}
		tx, err := row.transaction()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", row.TransactionID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
