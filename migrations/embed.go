// Package migrations embeds the SQL schema so binaries carry it with them.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files in lexical apply order.
//
//go:embed *.sql
var FS embed.FS

// Seeds holds optional development seed files.
//
//go:embed seeds/*.sql
var Seeds embed.FS
