package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/revenue/store"
	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/pagination"
	"github.com/angelmondragon/revenue-engine/pkg/validators"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const presentationPlaces = 2

var (
	hundred = decimal.NewFromInt(100)

	revenueTypes = []enums.TransactionType{enums.TransactionTypeSale, enums.TransactionTypeSubscription}
)

// Service answers dashboard queries from the resolved transaction view.
type Service struct {
	reader store.Reader
	lookup AttributionLookup
	logg   *logger.Logger
}

func NewService(reader store.Reader, lookup AttributionLookup, logg *logger.Logger) (*Service, error) {
	if reader == nil {
		return nil, errors.New("transaction reader is required")
	}
	if lookup == nil {
		lookup = NoAttribution{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{reader: reader, lookup: lookup, logg: logg}, nil
}

// Stats computes period totals and the change against the preceding period.
func (s *Service) Stats(ctx context.Context, req StatsRequest) (*Stats, error) {
	if err := validators.Struct(&req); err != nil {
		return nil, err
	}

	current, err := s.reader.Resolved(ctx, store.Filter{TenantID: req.TenantID, Start: req.Start, End: req.End})
	if err != nil {
		return nil, fmt.Errorf("load current period: %w", err)
	}
	length := req.End.Sub(req.Start)
	previous, err := s.reader.Resolved(ctx, store.Filter{
		TenantID: req.TenantID,
		Start:    req.Start.Add(-length),
		End:      req.Start,
		Types:    revenueTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("load previous period: %w", err)
	}

	totals := summarize(current)
	previousRevenue := summarize(previous).revenue

	aov := decimal.Zero
	if totals.sales > 0 {
		aov = totals.revenue.Div(decimal.NewFromInt(int64(totals.sales)))
	}

	return &Stats{
		TotalRevenue:      totals.revenue.Round(presentationPlaces),
		SalesCount:        totals.sales,
		RefundsCount:      totals.refunds,
		RefundsAmount:     totals.refunded.Round(presentationPlaces),
		AverageOrderValue: aov.Round(presentationPlaces),
		MRR:               totals.subscriptions.Round(presentationPlaces),
		RevenueChange:     percentChange(totals.revenue, previousRevenue).Round(presentationPlaces),
	}, nil
}

type periodTotals struct {
	revenue       decimal.Decimal
	subscriptions decimal.Decimal
	refunded      decimal.Decimal
	sales         int
	refunds       int
}

func summarize(rows []types.Transaction) periodTotals {
	var t periodTotals
	for _, row := range rows {
		switch {
		case row.IsRevenue():
			t.revenue = t.revenue.Add(row.Amount)
			t.sales++
			if row.Type == enums.TransactionTypeSubscription {
				t.subscriptions = t.subscriptions.Add(row.Amount)
			}
		case row.IsRefund():
			t.refunded = t.refunded.Add(row.Amount.Abs())
			t.refunds++
		}
	}
	return t
}

func percentChange(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous.Abs()).Mul(hundred)
}

// Chart buckets the period in the tenant time zone. The caller's labels are
// authoritative: empty buckets are zero and unknown buckets are dropped.
func (s *Service) Chart(ctx context.Context, req ChartRequest) (*Chart, error) {
	if err := validators.Struct(&req); err != nil {
		return nil, err
	}
	granularity, err := enums.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, err
	}

	rows, err := s.reader.Resolved(ctx, store.Filter{TenantID: req.TenantID, Start: req.Start, End: req.End})
	if err != nil {
		return nil, fmt.Errorf("load chart rows: %w", err)
	}

	n := len(req.Labels)
	index := make(map[string]int, n)
	for i, label := range req.Labels {
		if _, dup := index[label]; !dup {
			index[label] = i
		}
	}
	revenue := make([]decimal.Decimal, n)
	refunds := make([]decimal.Decimal, n)
	counts := make([]int, n)

	for _, row := range rows {
		i, ok := index[granularity.Label(row.Created.In(loc))]
		if !ok {
			continue
		}
		counts[i]++
		switch {
		case row.IsRevenue():
			revenue[i] = revenue[i].Add(row.Amount)
		case row.IsRefund():
			refunds[i] = refunds[i].Add(row.Amount.Abs())
		}
	}

	chart := &Chart{
		Labels:       append([]string(nil), req.Labels...),
		Revenue:      lo.Map(revenue, roundMoney),
		Refunds:      lo.Map(refunds, roundMoney),
		Transactions: counts,
	}
	return chart, nil
}

func roundMoney(d decimal.Decimal, _ int) decimal.Decimal {
	return d.Round(presentationPlaces)
}

// Transactions lists the resolved view newest first with the total count of
// the same filtered view.
func (s *Service) Transactions(ctx context.Context, req TransactionsRequest) (*TransactionsPage, error) {
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := validators.Struct(&req); err != nil {
		return nil, err
	}

	filter := store.Filter{
		TenantID: req.TenantID,
		Start:    req.Start,
		End:      req.End,
		Status:   enums.TransactionStatus(req.Status),
	}
	if req.Type != "" {
		filter.Types = []enums.TransactionType{enums.TransactionType(req.Type)}
	}

	page := pagination.Params{Take: req.Take, Skip: req.Skip}.Normalize()
	rows, total, err := s.reader.Page(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	items := lo.Map(rows, func(row types.Transaction, _ int) types.Transaction {
		row.Amount = row.Amount.Round(presentationPlaces)
		row.OriginalAmount = row.OriginalAmount.Round(presentationPlaces)
		return row
	})
	return &TransactionsPage{Items: items, Total: total, Take: page.Take, Skip: page.Skip}, nil
}

// Breakdown groups sale-type revenue by traffic source, country and product.
func (s *Service) Breakdown(ctx context.Context, req BreakdownRequest) (*Breakdown, error) {
	if err := validators.Struct(&req); err != nil {
		return nil, err
	}

	rows, err := s.reader.Resolved(ctx, store.Filter{
		TenantID: req.TenantID,
		Start:    req.Start,
		End:      req.End,
		Types:    revenueTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("load breakdown rows: %w", err)
	}

	sessionIDs := lo.Uniq(lo.FilterMap(rows, func(row types.Transaction, _ int) (string, bool) {
		return lo.FromPtr(row.SessionID), row.SessionID != nil
	}))
	profileIDs := lo.Uniq(lo.FilterMap(rows, func(row types.Transaction, _ int) (string, bool) {
		return lo.FromPtr(row.ProfileID), row.ProfileID != nil
	}))

	visitors := Visitors{}
	if len(sessionIDs) > 0 || len(profileIDs) > 0 {
		visitors, err = s.lookup.Lookup(ctx, req.TenantID, sessionIDs, profileIDs)
		if err != nil {
			return nil, fmt.Errorf("lookup attribution: %w", err)
		}
	}

	sources := newGrouper()
	countries := newGrouper()
	products := newGrouper()
	for _, row := range rows {
		visitor, found := visitors.find(row.SessionID, row.ProfileID)
		if found {
			sources.add(visitor.sourceName(), row.Amount)
			countries.add(visitor.countryName(), row.Amount)
		} else {
			sources.add(unknownName, row.Amount)
			countries.add(unknownName, row.Amount)
		}
		products.add(productName(row), row.Amount)
	}

	return &Breakdown{
		Sources:   sources.entries(),
		Countries: countries.entries(),
		Products:  products.entries(),
	}, nil
}

func productName(row types.Transaction) string {
	if name := strings.TrimSpace(lo.FromPtr(row.ProductName)); name != "" {
		return name
	}
	if id := strings.TrimSpace(lo.FromPtr(row.ProductID)); id != "" {
		return id
	}
	return unknownName
}

type grouper struct {
	groups map[string]*BreakdownEntry
}

func newGrouper() *grouper {
	return &grouper{groups: map[string]*BreakdownEntry{}}
}

func (g *grouper) add(name string, amount decimal.Decimal) {
	entry, ok := g.groups[name]
	if !ok {
		entry = &BreakdownEntry{Name: name}
		g.groups[name] = entry
	}
	entry.Revenue = entry.Revenue.Add(amount)
	entry.Count++
}

// entries orders by revenue desc, then name for stable output.
func (g *grouper) entries() []BreakdownEntry {
	out := make([]BreakdownEntry, 0, len(g.groups))
	for _, entry := range g.groups {
		out = append(out, BreakdownEntry{Name: entry.Name, Revenue: entry.Revenue.Round(presentationPlaces), Count: entry.Count})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
