package migrations

import "embed"

// FS holds the numbered migration scripts, applied in version order.
//
//go:embed scripts/*.sql
var FS embed.FS
