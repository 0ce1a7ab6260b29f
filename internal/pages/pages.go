// Package pages turns discovered templates into page-generation descriptors.
package pages

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/walker"
)

// PageDescriptor is a build-time instruction to generate one output
// artifact from one template source.
type PageDescriptor struct {
	Destination      string `json:"destination" yaml:"destination"`
	Source           string `json:"source" yaml:"source"`
	InjectIntoOutput bool   `json:"inject" yaml:"inject"`
	Minify           bool   `json:"minify" yaml:"minify"`
}

// InjectPolicy decides whether generated pages get asset tags injected.
// Two derivations exist in deployed theme configurations, so the policy is
// always chosen explicitly.
type InjectPolicy string

const (
	// InjectNever never injects asset tags.
	InjectNever InjectPolicy = "never"
	// InjectContent injects into every page that is not a layout.
	InjectContent InjectPolicy = "content"
	// InjectLayouts injects into layouts only.
	InjectLayouts InjectPolicy = "layouts"
)

// Policies lists the accepted inject policies.
var Policies = []InjectPolicy{InjectNever, InjectContent, InjectLayouts}

// ParseInjectPolicy validates s as an InjectPolicy.
func ParseInjectPolicy(s string) (InjectPolicy, error) {
	p := InjectPolicy(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Policies {
		if p == known {
			return p, nil
		}
	}
	return "", perrors.NewValidationError(perrors.CodeInjectPolicy,
		fmt.Sprintf("unknown inject policy %q (supported: never, content, layouts)", s))
}

// String implements pflag.Value.
func (p *InjectPolicy) String() string {
	return string(*p)
}

// Set implements pflag.Value.
func (p *InjectPolicy) Set(s string) error {
	parsed, err := ParseInjectPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Type implements pflag.Value.
func (p *InjectPolicy) Type() string {
	return "policy"
}

// Inject applies the policy to one match.
func (p InjectPolicy) Inject(m walker.FileMatch) (bool, error) {
	switch p {
	case InjectNever:
		return false, nil
	case InjectContent:
		return !m.IsLayout, nil
	case InjectLayouts:
		return m.IsLayout, nil
	default:
		return false, perrors.NewValidationError(perrors.CodeInjectPolicy,
			fmt.Sprintf("unknown inject policy %q", string(p)))
	}
}

// Options configures Build.
type Options struct {
	// OutputRoot is the directory destinations are resolved against.
	OutputRoot string
	// Policy derives InjectIntoOutput for each descriptor.
	Policy InjectPolicy
	// Minify is copied onto every descriptor.
	Minify bool
}

// Build constructs one descriptor per match, sorted by destination. An
// empty input yields an empty, non-nil result.
func Build(matches []walker.FileMatch, opts Options) ([]PageDescriptor, error) {
	policy, err := ParseInjectPolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	descriptors := make([]PageDescriptor, 0, len(matches))
	for _, m := range matches {
		inject, err := policy.Inject(m)
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, PageDescriptor{
			Destination:      destination(opts.OutputRoot, m.OutputPath),
			Source:           m.TemplatePath,
			InjectIntoOutput: inject,
			Minify:           opts.Minify,
		})
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Destination < descriptors[j].Destination
	})

	return descriptors, nil
}

func destination(root, outputPath string) string {
	if root == "" {
		return path.Clean(outputPath)
	}
	return filepath.Join(root, filepath.FromSlash(outputPath))
}
