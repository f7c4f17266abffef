// Package score implements the static pipeline complexity scorer.
//
// Score walks a parsed pipeline once and produces a complexity point total,
// a parallelism total, and the smallest tier recommended to run it. Every
// point contribution is recorded as an attributed Factor so callers can
// render a per-stage breakdown. All weights and thresholds are fixed design
// constants, not configuration.
//
// ScoreNamed wraps Score behind a Loader: a pipeline that cannot be located
// or parsed yields the default tier with an explanatory note — scoring never
// returns an error.
package score
