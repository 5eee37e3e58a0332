package catalog

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// scriptFilePattern accepts names like 042_add_email_column.sql. The 3-digit
// prefix means lexical order on the full filename equals numeric order on the
// prefix, which bounds the catalog at 000-999 scripts. Known limitation.
var scriptFilePattern = regexp.MustCompile(`^\d{3}_.+\.sql$`)

// Dir is the filesystem Source: it lists a directory and keeps only entries
// matching the script filename convention.
type Dir struct {
	path string
}

// NewDir creates a Source reading scripts from path.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// List returns the matching scripts sorted lexically ascending by filename.
// An unreadable directory is a DiscoveryError; a directory with no matching
// files yields an empty catalog, which is not an error.
func (d *Dir) List() ([]Script, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, &DiscoveryError{Dir: d.path, Cause: err}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if scriptFilePattern.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]Script, 0, len(names))
	for _, fileName := range names {
		stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		scripts = append(scripts, Script{
			OrderKey: fileName[:3],
			Name:     stem,
			FileName: fileName,
			Migrator: &sqlFileMigrator{path: filepath.Join(d.path, fileName)},
		})
	}
	return scripts, nil
}
