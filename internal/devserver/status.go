package devserver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// Status is a snapshot of the dev server shown on the status page.
type Status struct {
	Theme       string
	ProxyTarget string
	PublicPath  string
	Clients     int
	Builds      int
	LastBuild   time.Time
	Duration    time.Duration
	Pages       []string
	Files       []string
	LastError   string
	// Watching lists the source directories under watch.
	Watching []string
}

// StatusPage renders s as a standalone HTML page.
func StatusPage(s Status) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var err error
		write := func(format string, args ...interface{}) {
			if err == nil {
				_, err = fmt.Fprintf(w, format, args...)
			}
		}
		esc := templ.EscapeString

		write(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>themepack · %s</title>`, esc(s.Theme))
		write(`<style>body{font-family:system-ui,sans-serif;margin:2rem;color:#222}` +
			`table{border-collapse:collapse}td,th{padding:.25rem .75rem;text-align:left}` +
			`.error{color:#b00020;white-space:pre-wrap}</style></head><body>`)
		write(`<h1>%s</h1><table>`, esc(s.Theme))
		write(`<tr><th>Proxy target</th><td>%s</td></tr>`, esc(s.ProxyTarget))
		write(`<tr><th>Public path</th><td>%s</td></tr>`, esc(s.PublicPath))
		write(`<tr><th>Connected browsers</th><td>%d</td></tr>`, s.Clients)
		write(`<tr><th>Builds</th><td>%d</td></tr>`, s.Builds)
		write(`<tr><th>Watched directories</th><td>%d</td></tr>`, len(s.Watching))
		if !s.LastBuild.IsZero() {
			write(`<tr><th>Last build</th><td>%s (%s)</td></tr>`,
				esc(s.LastBuild.Format(time.RFC3339)), esc(s.Duration.Round(time.Millisecond).String()))
		}
		write(`</table>`)

		if s.LastError != "" {
			write(`<h2>Last error</h2><pre class="error">%s</pre>`, esc(s.LastError))
		}

		write(`<h2>Pages (%d)</h2><ul>`, len(s.Pages))
		for _, p := range s.Pages {
			write(`<li>%s</li>`, esc(p))
		}
		write(`</ul><h2>Assets (%d)</h2><ul>`, len(s.Files))
		for _, f := range s.Files {
			write(`<li>%s</li>`, esc(f))
		}
		write(`</ul></body></html>`)

		return err
	})
}
