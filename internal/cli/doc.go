// Package cli maps the studygrid command line onto app.Config and the App
// entry points, and turns failures into process exit codes: 2 for usage
// mistakes, 1 for studies that fail to load, configure or run.
package cli
