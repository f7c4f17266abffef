// Package notify delivers profiling threshold alerts to webhook targets.
package notify
