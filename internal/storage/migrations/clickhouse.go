package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	chstore "solana-wallet-analytics/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if needed and applies the embedded
// schema files. Returns a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	if closeErr := admin.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close admin connection: %w", closeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	if err := applyClickhouse(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn) error {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("read embedded clickhouse migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			return fmt.Errorf("validate migration %s: %w", file, err)
		}
		for _, stmt := range splitStatements(string(data)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}
	return nil
}

// splitStatements drops -- comment lines and splits on semicolons. The native
// protocol takes one statement per Exec. Semicolons inside literals are rejected
// beforehand by validateNoSemicolonInStrings.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

var errSemicolonInString = errors.New("semicolon inside string literal")

// validateNoSemicolonInStrings rejects SQL that splitStatements would cut apart.
// Doubled quotes are treated as escapes.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("%w at offset %d", errSemicolonInString, i)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
