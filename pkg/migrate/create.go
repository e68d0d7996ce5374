package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/pressly/goose/v3"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

var sqlTemplate = template.Must(template.New("revenue.sql").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.CamelName}}: write forward-only DDL for revenue_settings here.
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- {{.CamelName}}: undo the Up block.
-- +goose StatementEnd
`))

// CreateSQLMigration scaffolds <dir>/<YYYYMMDDHHMMSS>_<name>.sql through goose
// and returns the created path. Names are reduced to lowercase snake case.
func CreateSQLMigration(dir, name string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.Trim(nameSanitizeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	goose.SetSequential(false)
	if err := goose.CreateWithTemplate(nil, dir, sqlTemplate, safe, "sql"); err != nil {
		return "", fmt.Errorf("create migration %q: %w", safe, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_"+safe+".sql"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("locate created migration %q: %v", safe, err)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
