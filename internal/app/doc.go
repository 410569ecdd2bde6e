// Package app contains the core application logic. It wires the logger,
// the discipline registry, the study loader and the engine, and implements
// the run, tree, history and watch flows independently of the CLI.
package app
