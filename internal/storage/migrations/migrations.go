// Package migrations applies the embedded schema files for the Postgres
// state store and the ClickHouse event journal. Both runners apply files
// in lexical order, so new migrations take the next numeric prefix.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// sqlFiles lists the .sql files under dir, sorted, with dir prefixed so the
// result can be passed straight to fs.ReadFile.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, dir+"/"+entry.Name())
	}
	sort.Strings(files)
	return files, nil
}
