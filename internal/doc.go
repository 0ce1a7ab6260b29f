// Package internal contains the implementation packages of the themepack CLI.
//
// # Package Organization
//
//   - walker: recursive discovery of page templates under src/
//   - pages: page descriptors and the asset injection policy
//   - config: project file, dotenv APP_URL and theme.yaml resolution
//   - bundle: esbuild bundling with hashed names and asset relocation
//   - purge: removal of CSS rules no template references
//   - render: writing templates with asset tags injected and minified
//   - pipeline: build plans, the staged runner, metrics and the manifest
//   - watcher: debounced file system monitoring
//   - devserver: CMS proxy with live reload, status page and content server
//   - publish: upload of built assets to S3-compatible storage
//   - errors, logging, version: shared infrastructure
//
// # Data Flow
//
// A build starts from a loaded config.Config. pipeline.NewPlan runs the
// walker and turns its matches into page descriptors; pipeline.Runner then
// bundles the entry, copies static files and renders every descriptor with
// the bundle's script and style URLs. The dev server repeats the same build
// whenever the watcher reports a change and tells connected browsers to
// swap stylesheets or reload.
package internal
