// Package migrations embeds the SQL files applied by "medpay-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
