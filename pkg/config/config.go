// Package config resolves the proxy's runtime parameters: the single
// required CLI argument plus a handful of optional environment-variable
// overrides for the spec's fixed constants (SPEC_FULL.md §10).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/arnav-deka/proxycache/pkg/constants"
)

// Config is the fully resolved set of knobs a running proxy needs.
type Config struct {
	// Port is the proxy's own listening port, the CLI's one required
	// argument.
	Port int

	// MaxClients bounds concurrent in-flight connections (admission
	// gate capacity and acceptor slot-array size).
	MaxClients int

	// CacheMaxTotalBytes is the cache's total byte budget.
	CacheMaxTotalBytes int

	// CacheMaxElementBytes is the largest single entry the cache admits.
	CacheMaxElementBytes int

	// MetricsPort, when non-zero, binds a second listener serving
	// /metrics. Zero disables it — the default binary exposes no
	// listening socket beyond the proxy port.
	MetricsPort int
}

// UsageError is returned when the CLI was invoked with the wrong arity.
// The caller maps this to exit code 1 with usage text on stdout, per §6 —
// not stderr, because the spec's contract is specifically "usage on
// stdout".
type UsageError struct {
	ProgName string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s <port>", e.ProgName)
}

// FromArgs resolves a Config from os.Args-shaped arguments plus the
// process environment. args is the full argument list including argv[0],
// matching os.Args so callers never need to slice it themselves.
//
// The CLI's arity contract is exact: exactly one argument after the
// program name. A flag-parsing library was deliberately not used here —
// see DESIGN.md for why a generic parser's auto-generated usage/flag
// conventions would change the documented external interface.
func FromArgs(args []string, env func(string) string) (Config, error) {
	progName := "proxycache"
	if len(args) > 0 {
		progName = args[0]
	}

	if len(args) != 2 {
		return Config{}, &UsageError{ProgName: progName}
	}

	port, err := strconv.Atoi(args[1])
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, &UsageError{ProgName: progName}
	}

	cfg := Config{
		Port:                 port,
		MaxClients:           constants.MaxClients,
		CacheMaxTotalBytes:   constants.MaxTotalCacheBytes,
		CacheMaxElementBytes: constants.MaxElementBytes,
	}

	if v := envInt(env, "PROXY_MAX_CLIENTS"); v > 0 {
		cfg.MaxClients = v
	}
	if v := envInt(env, "PROXY_CACHE_MAX_TOTAL_BYTES"); v > 0 {
		cfg.CacheMaxTotalBytes = v
	}
	if v := envInt(env, "PROXY_CACHE_MAX_ELEMENT_BYTES"); v > 0 {
		cfg.CacheMaxElementBytes = v
	}
	if v := envInt(env, "PROXY_METRICS_PORT"); v > 0 {
		cfg.MetricsPort = v
	}

	return cfg, nil
}

func envInt(env func(string) string, name string) int {
	raw := env(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// OSEnv is the env lookup FromArgs expects in production, wired to
// os.Getenv.
func OSEnv(name string) string {
	return os.Getenv(name)
}
