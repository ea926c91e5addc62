// Package i18n resolves the language of a request and looks up translated
// page text. Bundles are loaded once at startup and never change afterwards,
// so a Translator is safe for concurrent use.
package i18n

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/sirupsen/logrus"
)

type Config struct {
	// Supported lists the language tags served, e.g. ["en", "ko"].
	Supported []string
	// Fallback is used when nothing matches and for keys missing in a bundle.
	Fallback string
	// Namespace names the bundle file loaded for every language.
	Namespace string
	// LoadPath is the bundle path template, e.g. "{{lng}}/{{ns}}.json".
	LoadPath string
}

func (c Config) withDefaults() Config {
	if c.Fallback == "" {
		c.Fallback = "en"
	}
	if len(c.Supported) == 0 {
		c.Supported = []string{c.Fallback}
	}
	if c.Namespace == "" {
		c.Namespace = "translation"
	}
	if c.LoadPath == "" {
		c.LoadPath = "{{lng}}/{{ns}}.json"
	}
	return c
}

// Translator holds one bundle per supported language.
type Translator struct {
	namespace string
	fallback  string
	supported []string
	bundles   map[string]Bundle
	resolver  *Resolver
}

// Load reads the bundle of every supported language from src. The fallback
// bundle must exist; other languages without a file fall back entirely.
func Load(ctx context.Context, cfg Config, src Source, log logrus.FieldLogger) (*Translator, error) {
	cfg = cfg.withDefaults()

	resolver, err := NewResolver(cfg.Supported, cfg.Fallback)
	if err != nil {
		return nil, err
	}

	t := &Translator{
		namespace: cfg.Namespace,
		fallback:  resolver.Fallback(),
		supported: resolver.Supported(),
		bundles:   make(map[string]Bundle, len(cfg.Supported)),
		resolver:  resolver,
	}

	published := listBundles(ctx, src, log)

	for _, lng := range t.supported {
		name := expandPath(cfg.LoadPath, lng, cfg.Namespace)
		if published != nil && !published[name] && lng != t.fallback {
			log.WithField("lng", lng).Warnf("translation bundle %s not published, using %s", name, t.fallback)
			continue
		}
		data, err := src.ReadFile(ctx, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && lng != t.fallback {
				log.WithField("lng", lng).Warnf("translation bundle %s not found, using %s", name, t.fallback)
				continue
			}
			return nil, fmt.Errorf("load bundle %s: %w", name, err)
		}
		bundle, err := ParseBundle(data)
		if err != nil {
			return nil, fmt.Errorf("load bundle %s: %w", name, err)
		}
		t.bundles[lng] = bundle
		log.WithFields(logrus.Fields{"lng": lng, "keys": len(bundle)}).Debug("translation bundle loaded")
	}

	return t, nil
}

// listBundles returns the bundle names a listing source holds, or nil when
// the source cannot list and every bundle has to be fetched.
func listBundles(ctx context.Context, src Source, log logrus.FieldLogger) map[string]bool {
	l, ok := src.(lister)
	if !ok {
		return nil
	}
	names, err := l.List(ctx)
	if err != nil {
		log.WithError(err).Warn("list translation bundles, fetching each language")
		return nil
	}
	return names
}

// New builds a Translator from bundles already in memory.
func New(cfg Config, bundles map[string]Bundle) (*Translator, error) {
	cfg = cfg.withDefaults()
	resolver, err := NewResolver(cfg.Supported, cfg.Fallback)
	if err != nil {
		return nil, err
	}
	t := &Translator{
		namespace: cfg.Namespace,
		fallback:  resolver.Fallback(),
		supported: resolver.Supported(),
		bundles:   make(map[string]Bundle, len(bundles)),
		resolver:  resolver,
	}
	for lng, b := range bundles {
		t.bundles[lng] = b
	}
	return t, nil
}

// Resolver returns the locale resolver matching this translator's languages.
func (t *Translator) Resolver() *Resolver { return t.resolver }

// Fallback is the default language.
func (t *Translator) Fallback() string { return t.fallback }

// T looks key up in the bundle for locale, then in the fallback bundle, and
// finally returns key itself. A "namespace:" prefix on key is accepted.
func (t *Translator) T(locale, key string, params map[string]any) string {
	key = strings.TrimPrefix(key, t.namespace+":")

	if s, ok := t.bundles[locale][key]; ok {
		return interpolate(s, params)
	}
	if s, ok := t.bundles[t.fallback][key]; ok {
		return interpolate(s, params)
	}
	return key
}

// For returns a lookup bound to locale, handy in templates.
func (t *Translator) For(locale string) func(key string, params ...any) string {
	return func(key string, params ...any) string {
		return t.T(locale, key, pairs(params))
	}
}

// pairs turns ("min", 6, "name", "A") into a map; a trailing odd value is dropped.
func pairs(kv []any) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}
