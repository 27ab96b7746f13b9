// Package migrations embeds and applies the Postgres and ClickHouse schemas.
package migrations

import "embed"

// PostgresFS embeds the PostgreSQL schema files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the ClickHouse schema files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
