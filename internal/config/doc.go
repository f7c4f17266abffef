// Package config loads and validates the streamwarden YAML configuration.
//
// Secrets never live in the file itself: auth fields name environment
// variables, and the accessor methods resolve them at call time. Watch
// provides hot reload of the file via fsnotify.
package config
