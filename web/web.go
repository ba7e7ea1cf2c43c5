// Package web embeds the page templates and static assets served in
// release mode.
package web

import "embed"

// EmbeddedFS holds templates/ and static/.
//
//go:embed templates static
var EmbeddedFS embed.FS
