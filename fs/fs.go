// Package appfs embeds the assets the binaries need at runtime:
// database migrations and email templates.
package appfs

import "embed"

//go:embed migrations templates
var FS embed.FS
