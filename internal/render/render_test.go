package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/pages"
)

var testAssets = Assets{
	Scripts: []string{"/assets/javascript/theme-abc.js"},
	Styles:  []string{"/assets/css/theme-abc.css"},
}

func TestInject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "full document",
			in:   `<html><head><title>{{ this.page.title }}</title></head><body><p>{{ 'x'|theme }}</p></body></html>`,
			want: `<html><head><title>{{ this.page.title }}</title>` +
				`<link href="/assets/css/theme-abc.css" rel="stylesheet"></head>` +
				`<body><p>{{ 'x'|theme }}</p><script src="/assets/javascript/theme-abc.js"></script></body></html>`,
		},
		{
			name: "no head",
			in:   `<html><body>{% page %}</body></html>`,
			want: `<html><link href="/assets/css/theme-abc.css" rel="stylesheet">` +
				`<body>{% page %}<script src="/assets/javascript/theme-abc.js"></script></body></html>`,
		},
		{
			name: "fragment",
			in:   `<div class="card">{% partial 'card' %}</div>`,
			want: `<link href="/assets/css/theme-abc.css" rel="stylesheet">` +
				`<div class="card">{% partial 'card' %}</div>` +
				`<script src="/assets/javascript/theme-abc.js"></script>`,
		},
		{
			name: "no body",
			in:   `<html><head></head><main></main></html>`,
			want: `<html><head><link href="/assets/css/theme-abc.css" rel="stylesheet"></head>` +
				`<main></main><script src="/assets/javascript/theme-abc.js"></script></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Inject([]byte(tt.in), testAssets)))
		})
	}
}

func TestInjectNothing(t *testing.T) {
	in := []byte(`<body></body>`)
	assert.Equal(t, in, Inject(in, Assets{}))
}

func TestInjectEscapesURLs(t *testing.T) {
	out := string(Inject([]byte(`<body></body>`), Assets{Scripts: []string{`/a.js?x=1&y="2"`}}))
	assert.Equal(t, `<body><script src="/a.js?x=1&amp;y=&#34;2&#34;"></script></body>`, out)
}

func TestMinify(t *testing.T) {
	in := "<div>\n  <p>Hello   world</p>\n  <!-- note -->\n  <!--[if IE]><p>old</p><![endif]-->\n" +
		"  <pre>  keep\n  this </pre>\n  <span>a</span> <span>b</span>\n" +
		"  <script>\n  var x = 1;\n  </script>\n</div>\n"

	got, err := Minify([]byte(in))
	require.NoError(t, err)
	out := string(got)

	assert.Contains(t, out, "<div><p>Hello world</p>")
	assert.NotContains(t, out, "note")
	assert.Contains(t, out, "<!--[if IE]>")
	assert.Contains(t, out, "<pre>  keep\n  this </pre>")
	assert.Contains(t, out, "<span>a</span> <span>b</span>")
	assert.Contains(t, out, "var x = 1;")
	assert.True(t, strings.HasSuffix(out, "</div>"), out)
}

func TestMinifyKeepsSpaceBetweenInlineElements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newline", "<p><b>a</b>\n<i>b</i></p>", "<p><b>a</b> <i>b</i></p>"},
		{"indented lines", "<p>\n  <a href=\"/x\">x</a>\n  <em>y</em>\n</p>", "<p><a href=\"/x\">x</a> <em>y</em></p>"},
		{"crlf", "<p><b>a</b>\r\n<i>b</i></p>", "<p><b>a</b> <i>b</i></p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Minify([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMinifyKeepsTwigMarkup(t *testing.T) {
	in := "<html>\n<head>\n  <title>{{ this.page.title }}</title>\n</head>\n" +
		"<body>\n  <div class=\"{{ cls }}\">{% partial 'card' %}</div>\n</body>\n</html>\n"

	got, err := Minify([]byte(in))
	require.NoError(t, err)
	out := string(got)

	assert.Contains(t, out, "<html>")
	assert.Contains(t, out, "<title>{{ this.page.title }}</title>")
	assert.Contains(t, out, `<div class="{{ cls }}">{% partial 'card' %}</div>`)
	assert.Contains(t, out, "</body>")
}

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRender(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	layout := "<html>\n<head></head>\n<body>\n  {% page %}\n</body>\n</html>\n"
	text := "Plain   text\n  {{ var }}\n"

	descs := []pages.PageDescriptor{
		{
			Destination:      filepath.Join(out, "layouts", "default.htm"),
			Source:           writeTemplate(t, src, "layouts/default.htm", layout),
			InjectIntoOutput: true,
		},
		{
			Destination: filepath.Join(out, "pages", "home.htm"),
			Source:      writeTemplate(t, src, "pages/home.htm", "<h1>  Home  </h1>\n"),
			Minify:      true,
		},
		{
			Destination:      filepath.Join(out, "content", "welcome.txt"),
			Source:           writeTemplate(t, src, "content/welcome.txt", text),
			InjectIntoOutput: true,
			Minify:           true,
		},
	}

	n, err := NewGenerator(nil).RenderAll(context.Background(), descs, testAssets)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := os.ReadFile(descs[0].Destination)
	require.NoError(t, err)
	assert.Equal(t, "<html>\n<head><link href=\"/assets/css/theme-abc.css\" rel=\"stylesheet\"></head>\n"+
		"<body>\n  {% page %}\n<script src=\"/assets/javascript/theme-abc.js\"></script></body>\n</html>\n", string(got))

	got, err = os.ReadFile(descs[1].Destination)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Home</h1>", string(got))

	got, err = os.ReadFile(descs[2].Destination)
	require.NoError(t, err)
	assert.Equal(t, text, string(got), "non-HTML templates are copied verbatim")
}

func TestRenderWritesThroughFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/pages/home.htm", []byte("<body>\n<b>a</b>\n<i>b</i>\n</body>"), 0o644))

	g := NewGenerator(nil)
	g.Fs = fsys
	err := g.Render(context.Background(), pages.PageDescriptor{
		Destination:      "/out/pages/home.htm",
		Source:           "/src/pages/home.htm",
		InjectIntoOutput: true,
		Minify:           true,
	}, testAssets)
	require.NoError(t, err)

	got, err := afero.ReadFile(fsys, "/out/pages/home.htm")
	require.NoError(t, err)
	assert.Contains(t, string(got), "<b>a</b> <i>b</i>")
	assert.Contains(t, string(got), `<script src="/assets/javascript/theme-abc.js"></script>`)
	assert.NoFileExists(t, "/out/pages/home.htm", "nothing reaches the OS filesystem")
}

func TestRenderMissingSource(t *testing.T) {
	out := t.TempDir()
	descs := []pages.PageDescriptor{{
		Destination: filepath.Join(out, "a.htm"),
		Source:      filepath.Join(out, "missing.htm"),
	}}

	n, err := NewGenerator(nil).RenderAll(context.Background(), descs, Assets{})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, perrors.HasCode(err, perrors.CodeRender))
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewGenerator(nil).Render(ctx, pages.PageDescriptor{}, Assets{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsHTML(t *testing.T) {
	assert.True(t, IsHTML("a/b.htm"))
	assert.True(t, IsHTML("a/b.HTML"))
	assert.False(t, IsHTML("a/b.txt"))
	assert.False(t, IsHTML("a/htm"))
}
