package i18n

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// ParamName is the query/form parameter that pins the language, rendered
// back into every page so the next request keeps it.
const ParamName = "lng"

// Resolver picks the language of a request from a fixed supported set.
type Resolver struct {
	supported []string
	matcher   language.Matcher
}

// NewResolver builds a resolver; fallback is added to supported if missing
// and always wins when nothing matches.
func NewResolver(supported []string, fallback string) (*Resolver, error) {
	fb, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback language %q: %w", fallback, err)
	}
	base, _ := fb.Base()

	// the matcher returns its first tag when nothing matches
	names := []string{base.String()}
	tags := []language.Tag{language.Make(base.String())}
	for _, s := range supported {
		tag, err := language.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("supported language %q: %w", s, err)
		}
		b, _ := tag.Base()
		if contains(names, b.String()) {
			continue
		}
		names = append(names, b.String())
		tags = append(tags, language.Make(b.String()))
	}
	return &Resolver{
		supported: names,
		matcher:   language.NewMatcher(tags),
	}, nil
}

// Supported returns the language tags served, fallback first.
func (r *Resolver) Supported() []string {
	return append([]string(nil), r.supported...)
}

func (r *Resolver) Fallback() string { return r.supported[0] }

// Resolve inspects, in order, the explicit lng parameter (query string or
// submitted form) and the Accept-Language header.
func (r *Resolver) Resolve(req *http.Request) string {
	if lng, ok := r.Match(req.FormValue(ParamName)); ok {
		return lng
	}
	if lng, ok := r.matchAcceptLanguage(req.Header.Get("Accept-Language")); ok {
		return lng
	}
	return r.Fallback()
}

// Match maps a single language tag onto a supported language.
func (r *Resolver) Match(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	_, idx, conf := r.matcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return r.supported[idx], true
}

func (r *Resolver) matchAcceptLanguage(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := r.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return r.supported[idx], true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
