package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxRatesBody = 1 << 20

// Source fetches a fresh rate table.
type Source interface {
	Fetch(ctx context.Context) (*RateTable, error)
}

// HTTPSource reads a JSON rate table from a remote endpoint. Both
// {"base": ..., "rates": {...}} and {"base_code": ..., "rates": {...}} shapes are accepted.
type HTTPSource struct {
	url     string
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewHTTPSource builds a source for url with a per-request timeout.
func NewHTTPSource(url string, timeout time.Duration, client *http.Client) (*HTTPSource, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rates url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{url: url, client: client, timeout: timeout, now: time.Now}, nil
}

type ratesPayload struct {
	Result   string                     `json:"result"`
	Base     string                     `json:"base"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) (*RateTable, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRatesBody))
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var payload ratesPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRatesBody)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if strings.EqualFold(payload.Result, "error") {
		return nil, errors.New("rates source reported an error")
	}

	base := NormalizeCode(payload.Base)
	if base == "" {
		base = NormalizeCode(payload.BaseCode)
	}
	if base == "" || len(payload.Rates) == 0 {
		return nil, errors.New("rates payload missing base or rates")
	}

	rates := make(map[string]decimal.Decimal, len(payload.Rates))
	for code, rate := range payload.Rates {
		if rate.IsPositive() {
			rates[NormalizeCode(code)] = rate
		}
	}
	return &RateTable{Base: base, Rates: rates, FetchedAt: s.now().UTC()}, nil
}
