// Package purge removes style rules whose selectors reference classes or ids
// that never appear in the theme sources.
//
// Candidate tokens are pulled out of every source file with a permissive
// extractor (see DefaultExtractor), then each stylesheet is parsed and
// rewritten rule by rule: a selector survives when every class and id it
// names is a known token. At-rules that carry no selectors of their own
// (@font-face, @keyframes, @import, ...) are always kept, while grouping
// at-rules such as @media are purged recursively and dropped when they end
// up empty.
package purge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	perrors "github.com/conneroisu/themepack/internal/errors"
)

var tokenPattern = regexp.MustCompile(`[\w\-/:]+`)

// DefaultExtractor returns every run of word characters, dashes, slashes
// and colons in content, with trailing colons removed.
func DefaultExtractor(content string) []string {
	raw := tokenPattern.FindAllString(content, -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.TrimRight(tok, ":")
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// skippedContent are extensions never scanned for tokens: stylesheets would
// mark every class they define as used, and binaries carry no markup.
var skippedContent = map[string]bool{
	".css": true, ".scss": true, ".sass": true, ".less": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".map": true,
}

// Set is a set of selector tokens considered in use.
type Set map[string]struct{}

// NewSet builds a Set from tokens.
func NewSet(tokens ...string) Set {
	s := make(Set, len(tokens))
	s.Add(tokens...)
	return s
}

// Add inserts tokens.
func (s Set) Add(tokens ...string) {
	for _, t := range tokens {
		s[t] = struct{}{}
	}
}

// Has reports whether token is present.
func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// CollectSelectors extracts candidate tokens from every file under dir.
func CollectSelectors(ctx context.Context, dir string) (Set, error) {
	used := NewSet()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return perrors.NewIOError(perrors.CodeListDir, "failed to scan content", err).WithPath(path)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || skippedContent[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return perrors.NewIOError(perrors.CodeListDir, "failed to read content", err).WithPath(path)
		}
		used.Add(DefaultExtractor(string(data))...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return used, nil
}

// Purger rewrites stylesheets against a set of used tokens.
type Purger struct {
	used     Set
	safelist Set
}

// New creates a Purger. Safelisted tokens are always considered used.
func New(used Set, safelist []string) *Purger {
	return &Purger{used: used, safelist: NewSet(safelist...)}
}

// Purge returns css without the rules whose selectors are all unused.
// Comments are dropped except for /*! ... */ preservation comments.
func (p *Purger) Purge(src []byte) ([]byte, error) {
	parser := css.NewParser(parse.NewInput(bytes.NewReader(src)), false)
	stack := []*frame{{}}
	var selectors []string

	for {
		gt, _, data := parser.Next()
		top := stack[len(stack)-1]

		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); !errors.Is(err, io.EOF) {
				return nil, perrors.NewBuildError(perrors.CodeBundle, "failed to parse stylesheet", err)
			}
			for len(stack) > 1 {
				stack = closeFrame(stack)
			}
			return stack[0].out, nil

		case css.CommentGrammar:
			if bytes.HasPrefix(data, []byte("/*!")) {
				top.out = append(top.out, data...)
			}

		case css.AtRuleGrammar:
			top.out = append(top.out, prelude(data, parser.Values())...)
			top.out = append(top.out, ';')

		case css.BeginAtRuleGrammar:
			name := strings.ToLower(strings.TrimPrefix(string(data), "@"))
			grouping := !top.keepAll && groupingAtRules[name]
			stack = append(stack, &frame{
				head:    prelude(data, parser.Values()),
				prune:   grouping,
				keepAll: !grouping,
			})

		case css.QualifiedRuleGrammar:
			selectors = append(selectors, joinTokens(data, parser.Values()))

		case css.BeginRulesetGrammar:
			selectors = append(selectors, joinTokens(data, parser.Values()))
			kept := selectors
			if !top.keepAll {
				kept = p.keepSelectors(selectors)
			}
			stack = append(stack, &frame{
				head:    strings.Join(kept, ","),
				drop:    len(kept) == 0,
				keepAll: top.keepAll,
			})
			selectors = nil

		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			if top.decls > 0 {
				top.out = append(top.out, ';')
			}
			top.decls++
			top.out = append(top.out, data...)
			top.out = append(top.out, ':')
			top.out = append(top.out, joinTokens(nil, parser.Values())...)

		case css.EndRulesetGrammar, css.EndAtRuleGrammar:
			if len(stack) > 1 {
				stack = closeFrame(stack)
			}

		case css.TokenGrammar:
			// Bodies of at-rules the parser does not structure arrive as
			// raw tokens.
			if len(stack) > 1 {
				top.out = append(top.out, data...)
			}
		}
	}
}

// groupingAtRules contain nested style rules that are purged recursively.
// Other block at-rules (@font-face, @keyframes, @layer, ...) are kept whole.
var groupingAtRules = map[string]bool{
	"media":    true,
	"supports": true,
	"document": true,
}

// frame is an open block being rewritten.
type frame struct {
	head  string
	out   []byte
	decls int
	// drop marks a ruleset none of whose selectors survived.
	drop bool
	// prune marks a grouping at-rule, dropped when nothing inside survives.
	prune bool
	// keepAll disables purging inside non-grouping at-rules.
	keepAll bool
}

// closeFrame pops the innermost block and writes it into its parent.
func closeFrame(stack []*frame) []*frame {
	f := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	if f.drop || (f.prune && len(f.out) == 0) {
		return stack
	}

	parent := stack[len(stack)-1]
	parent.out = append(parent.out, f.head...)
	parent.out = append(parent.out, '{')
	parent.out = append(parent.out, f.out...)
	parent.out = append(parent.out, '}')
	return stack
}

// prelude renders an at-rule name and its prelude tokens.
func prelude(name []byte, values []css.Token) string {
	rest := joinTokens(nil, values)
	if rest == "" {
		return string(name)
	}
	return string(name) + " " + rest
}

// joinTokens concatenates tokens without comments, collapsing whitespace
// runs to one space.
func joinTokens(lead []byte, values []css.Token) string {
	var b strings.Builder
	b.Write(lead)
	for _, v := range values {
		switch v.TokenType {
		case css.CommentToken:
		case css.WhitespaceToken:
			b.WriteByte(' ')
		default:
			b.Write(v.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func (p *Purger) keepSelectors(selectors []string) []string {
	var kept []string
	for _, sel := range selectors {
		if sel != "" && p.selectorUsed(sel) {
			kept = append(kept, sel)
		}
	}
	return kept
}

func (p *Purger) selectorUsed(sel string) bool {
	for _, tok := range selectorTokens(sel) {
		if !p.used.Has(tok) && !p.safelist.Has(tok) {
			return false
		}
	}
	return true
}

// selectorTokens returns the class and id names in a selector, unescaped.
// Names inside attribute selectors and functional pseudo-classes are
// ignored since they do not have to match for the rule to apply.
func selectorTokens(sel string) []string {
	var tokens []string
	depthParen, depthBracket := 0, 0

	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch {
		case c == '\\':
			i++
		case c == '(':
			depthParen++
		case c == ')':
			if depthParen > 0 {
				depthParen--
			}
		case c == '[':
			depthBracket++
		case c == ']':
			if depthBracket > 0 {
				depthBracket--
			}
		case (c == '.' || c == '#') && depthParen == 0 && depthBracket == 0:
			name, n := readIdent(sel[i+1:])
			if name != "" {
				tokens = append(tokens, name)
			}
			i += n
		}
	}

	return tokens
}

// readIdent reads a CSS identifier with escapes resolved and returns it with
// the number of source bytes consumed.
func readIdent(s string) (string, int) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		if c == '-' || c == '_' || c >= 0x80 ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			i++
			continue
		}
		break
	}
	return b.String(), i
}
