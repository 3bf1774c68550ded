package router

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Defaults for the wallet card deployment.
const (
	DefaultVersionTag      = "wallet-pwa-v6"
	DefaultFallbackPath    = "/index.html"
	DefaultFreshPathSuffix = "/images/card-cliente.png"
)

// DefaultPrecache is the application shell precached at install.
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.webmanifest",
	"/icons/icon.svg",
}

// Config holds the router configuration.
type Config struct {
	// VersionTag names the current cache store. Bump it on every deployment.
	VersionTag string

	// Origin is the base URL manifest paths are resolved against.
	Origin *url.URL

	// Precache lists root-relative paths fetched at install.
	Precache []string

	// FallbackPath is served when the network fails on an uncached request.
	// It must be part of Precache.
	FallbackPath string

	// FreshPathSuffix marks the one asset served network-first.
	// Empty disables the rule.
	FreshPathSuffix string

	// PrecacheConcurrency bounds parallel manifest fetches (0 = unbounded).
	PrecacheConcurrency int
}

// DefaultConfig returns the wallet card configuration for origin.
func DefaultConfig(origin *url.URL) Config {
	return Config{
		VersionTag:          DefaultVersionTag,
		Origin:              origin,
		Precache:            append([]string(nil), DefaultPrecache...),
		FallbackPath:        DefaultFallbackPath,
		FreshPathSuffix:     DefaultFreshPathSuffix,
		PrecacheConcurrency: 4,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.VersionTag) == "" {
		return errors.New("version tag is required")
	}
	if c.Origin == nil || !c.Origin.IsAbs() || c.Origin.Host == "" {
		return errors.New("origin must be an absolute URL")
	}
	if len(c.Precache) == 0 {
		return errors.New("precache manifest cannot be empty")
	}
	if c.PrecacheConcurrency < 0 {
		return fmt.Errorf("precache concurrency must be >= 0 (got %d)", c.PrecacheConcurrency)
	}

	seen := make(map[string]bool, len(c.Precache))
	for _, p := range c.Precache {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("precache path %q must be root-relative", p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate precache path %q", p)
		}
		seen[p] = true
	}
	if !seen[c.FallbackPath] {
		return fmt.Errorf("fallback path %q must be precached", c.FallbackPath)
	}
	return nil
}

// resolve turns a root-relative path into an absolute URL on the origin.
func (c Config) resolve(path string) *url.URL {
	return c.Origin.ResolveReference(&url.URL{Path: path})
}
