package render

import (
	"bytes"
	"html"
	"sort"
	"strings"

	xhtml "golang.org/x/net/html"
)

// Assets are the public URLs injected into generated pages.
type Assets struct {
	Scripts []string `json:"scripts"`
	Styles  []string `json:"styles"`
}

// Empty reports whether there is nothing to inject.
func (a Assets) Empty() bool {
	return len(a.Scripts) == 0 && len(a.Styles) == 0
}

func (a Assets) styleTags() string {
	var b strings.Builder
	for _, href := range a.Styles {
		b.WriteString(`<link href="` + html.EscapeString(href) + `" rel="stylesheet">`)
	}
	return b.String()
}

func (a Assets) scriptTags() string {
	var b strings.Builder
	for _, src := range a.Scripts {
		b.WriteString(`<script src="` + html.EscapeString(src) + `"></script>`)
	}
	return b.String()
}

// landmarks are byte offsets of the structural tags of a document, -1 when
// absent.
type landmarks struct {
	htmlOpenEnd   int
	headClose     int
	bodyOpenStart int
	bodyClose     int
	htmlClose     int
}

// scan tokenizes src without building a tree so template markup between
// tags survives byte for byte.
func scan(src []byte) landmarks {
	l := landmarks{-1, -1, -1, -1, -1}
	z := xhtml.NewTokenizer(bytes.NewReader(src))
	offset := 0

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return l
		}
		start := offset
		offset += len(z.Raw())

		name, _ := z.TagName()
		switch tt {
		case xhtml.StartTagToken:
			switch string(name) {
			case "html":
				if l.htmlOpenEnd < 0 {
					l.htmlOpenEnd = offset
				}
			case "body":
				if l.bodyOpenStart < 0 {
					l.bodyOpenStart = start
				}
			}
		case xhtml.EndTagToken:
			switch string(name) {
			case "head":
				if l.headClose < 0 {
					l.headClose = start
				}
			case "body":
				l.bodyClose = start
			case "html":
				l.htmlClose = start
			}
		}
	}
}

type insertion struct {
	at   int
	text string
}

// Inject adds stylesheet links at the end of <head> and script tags at the
// end of <body>. Without a <head>, links go before <body>, after <html>,
// or at the start. Without a <body>, scripts go before </html> or at the end.
func Inject(src []byte, assets Assets) []byte {
	if assets.Empty() {
		return src
	}

	l := scan(src)
	var ins []insertion

	if tags := assets.styleTags(); tags != "" {
		at := 0
		switch {
		case l.headClose >= 0:
			at = l.headClose
		case l.bodyOpenStart >= 0:
			at = l.bodyOpenStart
		case l.htmlOpenEnd >= 0:
			at = l.htmlOpenEnd
		}
		ins = append(ins, insertion{at, tags})
	}

	if tags := assets.scriptTags(); tags != "" {
		at := len(src)
		switch {
		case l.bodyClose >= 0:
			at = l.bodyClose
		case l.htmlClose >= 0:
			at = l.htmlClose
		}
		ins = append(ins, insertion{at, tags})
	}

	sort.SliceStable(ins, func(i, j int) bool { return ins[i].at < ins[j].at })

	var out bytes.Buffer
	out.Grow(len(src) + 256)
	prev := 0
	for _, in := range ins {
		out.Write(src[prev:in.at])
		out.WriteString(in.text)
		prev = in.at
	}
	out.Write(src[prev:])
	return out.Bytes()
}
