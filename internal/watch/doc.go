// Package watch re-validates and re-scores pipeline definitions as their
// files change on disk. It powers the watch subcommand: point it at the
// processors directory and every save produces a fresh report.
package watch
