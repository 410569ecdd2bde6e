// Package registry provides the central "glue" for the discipline system.
//
// The Registry maps the stable string module paths used in study files
// (e.g., "testdiscs.disc1") to the compiled Go constructors that implement
// the discipline. Builders only carry the module path; the engine resolves
// it here at build time, so new disciplines plug in by registering a
// constructor from their module's Register method.
//
// During application startup, the registry is populated and then validated
// to make sure every registered discipline declares a coherent grammar,
// preventing a wide class of configuration-time errors.
package registry
