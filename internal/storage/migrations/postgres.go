package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"solana-wallet-analytics/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded schema files in lexical order.
// Every statement is idempotent, so running on each start is safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// sqlFiles lists the .sql files of dir, sorted, as paths usable with fs.ReadFile.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, dir+"/"+entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
