// Package validate implements the rule-based structural validator for
// pipeline definitions.
//
// Two strictness levels exist and are selected explicitly by Mode: the
// minimal validator treats a missing output stage as a warning, the strict
// validator treats it as an error. Every other rule behaves identically in
// both modes, and all rules are checked independently — a failing rule never
// short-circuits the rest.
//
// Naming-convention findings are advisory lint, reported in a category of
// their own; they never affect validity.
package validate
