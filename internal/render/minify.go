package render

import (
	"bytes"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
)

const htmlMediaType = "text/html"

// minifier keeps the markup Twig templates rely on: document tags, end
// tags and attribute quotes all survive. Script and style bodies are left
// as written since no minifier is registered for them.
var minifier = func() *minify.M {
	m := minify.New()
	m.Add(htmlMediaType, &mhtml.Minifier{
		KeepConditionalComments: true,
		KeepDefaultAttrVals:     true,
		KeepDocumentTags:        true,
		KeepEndTags:             true,
		KeepQuotes:              true,
	})
	return m
}()

// Minify collapses whitespace and drops comments other than conditional
// comments. Whitespace between inline elements shrinks to a single space.
func Minify(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src))
	if err := minifier.Minify(htmlMediaType, &out, bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
