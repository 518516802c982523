// Package cli constructs the gitpublish command-line interface, wiring the
// Cobra command hierarchy, the layered configuration loader, structured
// logging and the per-command publish session (workspace backend, journal
// and publish service).
package cli
