package bundle

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/purge"
)

const assetNamespace = "themepack-asset"

var (
	fontExtensions = map[string]bool{
		".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".svg": true,
	}
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true,
	}
)

// assetFilter matches font and image references, with an optional query
// or fragment such as "?v=4.7.0" or "#iefix".
const assetFilter = `\.(woff2?|ttf|eot|svg|png|jpe?g|gif|ico)([?#].*)?$`

var remoteRef = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*:|//)`)

// assetRelocator copies referenced fonts and images to fixed, unhashed
// locations and rewrites the references to their public URLs.
type assetRelocator struct {
	publicPath string
	fontsDir   string
	imagesDir  string

	mu      sync.Mutex
	sources map[string]string // output path -> source file
}

func newAssetRelocator(opts Options) *assetRelocator {
	return &assetRelocator{
		publicPath: opts.PublicPath,
		fontsDir:   opts.FontsDir,
		imagesDir:  opts.ImagesDir,
		sources:    make(map[string]string),
	}
}

func (a *assetRelocator) plugin() api.Plugin {
	return api.Plugin{
		Name: "themepack-assets",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: assetFilter}, a.resolve)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: assetNamespace}, a.load)
		},
	}
}

// resolve claims local asset references. CSS url() tokens become external
// URLs; imports from scripts load as a module exporting the URL.
func (a *assetRelocator) resolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	ref, suffix := splitSuffix(args.Path)
	if remoteRef.MatchString(ref) {
		return api.OnResolveResult{}, nil
	}

	src := filepath.FromSlash(ref)
	if !filepath.IsAbs(src) {
		src = filepath.Join(args.ResolveDir, src)
	}
	if info, err := os.Stat(src); err != nil || info.IsDir() {
		// Leave it to esbuild, which reports the unresolved path.
		return api.OnResolveResult{}, nil
	}

	url := a.publicPath + a.place(src) + suffix

	if args.Kind == api.ResolveCSSURLToken || args.Kind == api.ResolveCSSImportRule {
		return api.OnResolveResult{Path: url, External: true}, nil
	}
	return api.OnResolveResult{Path: src, Namespace: assetNamespace, PluginData: url}, nil
}

func (a *assetRelocator) load(args api.OnLoadArgs) (api.OnLoadResult, error) {
	url, _ := args.PluginData.(string)
	contents := "export default " + strconv.Quote(url) + ";"
	return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
}

// place records src and returns its output path. SVGs go with the fonts
// when they live in a directory named like the fonts dir.
func (a *assetRelocator) place(src string) string {
	ext := strings.ToLower(filepath.Ext(src))
	dir := a.imagesDir
	if fontExtensions[ext] && (!imageExtensions[ext] || inDir(src, a.fontsDir)) {
		dir = a.fontsDir
	}
	rel := path.Join(dir, filepath.Base(src))

	a.mu.Lock()
	a.sources[rel] = src
	a.mu.Unlock()
	return rel
}

// emit appends the relocated assets to result.
func (a *assetRelocator) emit(result *Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rels := make([]string, 0, len(a.sources))
	for rel := range a.sources {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		data, err := os.ReadFile(a.sources[rel])
		if err != nil {
			return perrors.NewIOError(perrors.CodeBundle, "failed to read asset", err).WithPath(a.sources[rel])
		}
		result.Files = append(result.Files, OutputFile{Path: rel, Contents: data})
	}
	return nil
}

func inDir(file, name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(file)), "/") {
		if part == name {
			return true
		}
	}
	return false
}

// splitSuffix separates a query string or fragment from a reference.
func splitSuffix(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

// purgePlugin loads every stylesheet through p.
func purgePlugin(p *purge.Purger) api.Plugin {
	return api.Plugin{
		Name: "themepack-purge",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.css$`, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					data, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					purged, err := p.Purge(data)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					contents := string(purged)
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderCSS}, nil
				})
		},
	}
}
