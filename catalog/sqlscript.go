package catalog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

const (
	upMarker   = "-- migrate:up"
	downMarker = "-- migrate:down"
)

// sqlFileMigrator executes the up/down sections of a script file. The file is
// read and parsed on every execution, never cached.
type sqlFileMigrator struct {
	path string
}

func (m *sqlFileMigrator) Up(ctx context.Context, client warehouse.Client, datasetID string) error {
	return m.run(ctx, client, datasetID, upMarker)
}

func (m *sqlFileMigrator) Down(ctx context.Context, client warehouse.Client, datasetID string) error {
	return m.run(ctx, client, datasetID, downMarker)
}

func (m *sqlFileMigrator) run(ctx context.Context, client warehouse.Client, datasetID, marker string) error {
	content, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", m.path, err)
	}

	section, err := extractSection(string(content), marker)
	if err != nil {
		return fmt.Errorf("script %s: %w", m.path, err)
	}

	// The dataset placeholder lets one script run against any target dataset.
	section = strings.ReplaceAll(section, "{{dataset}}", datasetID)

	for _, stmt := range splitStatements(section) {
		if _, err := client.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed in %s: %w", m.path, err)
		}
	}
	return nil
}

// extractSection returns the text between marker and the next section marker
// (or end of file).
func extractSection(content, marker string) (string, error) {
	var (
		lines     []string
		inSection bool
		found     bool
	)

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == upMarker || trimmed == downMarker {
			inSection = trimmed == marker
			if inSection {
				found = true
			}
			continue
		}
		if inSection {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("missing %q section", marker)
	}
	return strings.Join(lines, "\n"), nil
}

// splitStatements breaks a script section into individual statements on
// line-terminating semicolons. Line comments and blank lines are dropped.
func splitStatements(section string) []string {
	var (
		statements []string
		current    []string
	)

	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current = append(current, line)
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(strings.Join(current, "\n"))
			statements = append(statements, strings.TrimSuffix(stmt, ";"))
			current = nil
		}
	}
	if len(current) > 0 {
		statements = append(statements, strings.TrimSpace(strings.Join(current, "\n")))
	}
	return statements
}
