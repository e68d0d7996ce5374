package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cbigquery "cloud.google.com/go/bigquery"
	pkgbigquery "github.com/angelmondragon/revenue-engine/pkg/bigquery"
	"google.golang.org/api/iterator"
)

type sessionQuerier interface {
	Query(ctx context.Context, sql string, params []cbigquery.QueryParameter) (pkgbigquery.RowIterator, error)
	TableRef(table string) string
}

// SessionLookup reads visitor attribution from the analytics sessions table.
// A profile maps to its earliest session (first touch).
type SessionLookup struct {
	client sessionQuerier
	table  string
}

var _ AttributionLookup = (*SessionLookup)(nil)

func NewSessionLookup(client sessionQuerier, table string) (*SessionLookup, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("sessions table is required")
	}
	return &SessionLookup{client: client, table: table}, nil
}

const sessionsQuery = `SELECT session_id, profile_id, source, referrer, country
FROM (
  SELECT
    session_id, profile_id, source, referrer, country,
    ROW_NUMBER() OVER (PARTITION BY profile_id ORDER BY started_at ASC) AS profile_rank
  FROM %s
  WHERE tenant_id = @tenant_id
    AND (session_id IN UNNEST(@session_ids) OR profile_id IN UNNEST(@profile_ids))
)
ORDER BY profile_rank`

type sessionRow struct {
	SessionID cbigquery.NullString `bigquery:"session_id"`
	ProfileID cbigquery.NullString `bigquery:"profile_id"`
	Source    cbigquery.NullString `bigquery:"source"`
	Referrer  cbigquery.NullString `bigquery:"referrer"`
	Country   cbigquery.NullString `bigquery:"country"`
}

func (l *SessionLookup) Lookup(ctx context.Context, tenantID string, sessionIDs, profileIDs []string) (Visitors, error) {
	out := Visitors{BySession: map[string]Visitor{}, ByProfile: map[string]Visitor{}}
	if len(sessionIDs) == 0 && len(profileIDs) == 0 {
		return out, nil
	}

	sql := fmt.Sprintf(sessionsQuery, l.client.TableRef(l.table))
	it, err := l.client.Query(ctx, sql, []cbigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "session_ids", Value: nonNil(sessionIDs)},
		{Name: "profile_ids", Value: nonNil(profileIDs)},
	})
	if err != nil {
		return Visitors{}, fmt.Errorf("query sessions: %w", err)
	}

	for {
		var row sessionRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return Visitors{}, fmt.Errorf("read session row: %w", err)
		}
		visitor := Visitor{Source: row.Source.StringVal, Referrer: row.Referrer.StringVal, Country: row.Country.StringVal}
		if row.SessionID.Valid {
			out.BySession[row.SessionID.StringVal] = visitor
		}
		// rows arrive ordered by rank so the first one seen per profile is the earliest
		if row.ProfileID.Valid {
			if _, seen := out.ByProfile[row.ProfileID.StringVal]; !seen {
				out.ByProfile[row.ProfileID.StringVal] = visitor
			}
		}
	}
	return out, nil
}

// BigQuery rejects NULL array parameters.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
