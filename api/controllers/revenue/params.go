package revenue

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// resolveRange reads an explicit from/to pair (RFC3339) or a preset window
// ending now. The preset defaults to 30d.
func resolveRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	if from != "" || to != "" {
		if from == "" || to == "" {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
		}
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid from timestamp")
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid to timestamp")
		}
		start = start.UTC()
		end = end.UTC()
		if !end.After(start) {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
		}
		return start, end, nil
	}

	duration, ok := presetDuration(strings.TrimSpace(query.Get("preset")))
	if !ok {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset")
	}
	return now.Add(-duration), now, nil
}

// resolveOptionalRange is resolveRange for listings, where no range at all means
// every transaction.
func resolveOptionalRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	if query.Get("from") == "" && query.Get("to") == "" && query.Get("preset") == "" {
		return time.Time{}, time.Time{}, nil
	}
	return resolveRange(r, now)
}

func presetDuration(value string) (time.Duration, bool) {
	if value == "" {
		value = "30d"
	}
	switch strings.ToLower(value) {
	case "24h":
		return 24 * time.Hour, true
	case "7d":
		return 7 * 24 * time.Hour, true
	case "30d":
		return 30 * 24 * time.Hour, true
	case "90d":
		return 90 * 24 * time.Hour, true
	case "365d":
		return 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// labelsParam accepts repeated and comma separated labels.
func labelsParam(r *http.Request) []string {
	var labels []string
	for _, raw := range r.URL.Query()["labels"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				labels = append(labels, part)
			}
		}
	}
	return labels
}

func providerParam(r *http.Request) (enums.RevenueProvider, error) {
	provider, err := enums.ParseRevenueProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown revenue provider").
			WithDetails(map[string]any{"provider": "must be stripe or paddle"})
	}
	return provider, nil
}
