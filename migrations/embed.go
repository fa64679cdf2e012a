// Package migrations содержит SQL миграции схемы event store для goose.
package migrations

import "embed"

// FS миграции, встроенные в бинарник
//
//go:embed *.sql
var FS embed.FS
