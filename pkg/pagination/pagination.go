package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any listing can request.
	MaxLimit = 100
)

// Params holds offset pagination inputs from callers.
type Params struct {
	Take int
	Skip int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize returns params with the default/max take applied and a non-negative skip.
func (p Params) Normalize() Params {
	skip := p.Skip
	if skip < 0 {
		skip = 0
	}
	return Params{Take: NormalizeLimit(p.Take), Skip: skip}
}

// Window returns the [start, end) slice bounds of the page within total items.
func (p Params) Window(total int) (int, int) {
	n := p.Normalize()
	if n.Skip >= total {
		return total, total
	}
	end := n.Skip + n.Take
	if end > total {
		end = total
	}
	return n.Skip, end
}
