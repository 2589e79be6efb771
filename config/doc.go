// Package config loads daemon configuration from TIERCACHE_* environment
// variables and validates it before anything is wired up.
package config
