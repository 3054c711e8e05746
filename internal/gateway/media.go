package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Resolver turns caller-supplied media references into URLs a vendor can
// fetch. Only absolute http(s) URLs pass through; anything else (blob:,
// file:, data:, relative paths, garbage) becomes the default asset.
type Resolver struct {
	defaultSupporting string
	defaultPortrait   string
	log               zerolog.Logger
}

// NewResolver returns a Resolver with the given defaults.
func NewResolver(defaultSupporting, defaultPortrait string, log zerolog.Logger) *Resolver {
	return &Resolver{
		defaultSupporting: defaultSupporting,
		defaultPortrait:   defaultPortrait,
		log:               log.With().Str("component", "media-resolver").Logger(),
	}
}

// Default returns the fallback asset for kind.
func (r *Resolver) Default(kind MediaKind) string {
	if kind == MediaPortrait {
		return r.defaultPortrait
	}
	return r.defaultSupporting
}

// Resolve returns ref when it is durable, otherwise the default for kind.
func (r *Resolver) Resolve(_ context.Context, ref string, kind MediaKind) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return r.Default(kind)
	}
	if IsDurableURL(ref) {
		return ref
	}
	r.log.Warn().
		Str("reference", redactRef(ref)).
		Str("default", r.Default(kind)).
		Msg("unfetchable media reference replaced with default asset")
	return r.Default(kind)
}

// IsDurableURL reports whether s is an absolute http(s) URL with a host.
func IsDurableURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	}
	return false
}

// redactRef keeps logs small when a data: URL slips through.
func redactRef(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
