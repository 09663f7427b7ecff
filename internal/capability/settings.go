package capability

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/hurou927/dbmeta/internal/dialect"
)

// Settings answers typed capability questions for one dialect and version.
// Resolved values are memoized until the registry reloads.
type Settings struct {
	reg     *Registry
	id      dialect.ID
	version dialect.Version

	mu    sync.Mutex
	gen   uint64
	cache map[string]cached
}

type cached struct {
	value string
	found bool
}

// Dialect returns the dialect these settings resolve for.
func (s *Settings) Dialect() dialect.ID { return s.id }

// Version returns the product version these settings resolve for.
func (s *Settings) Version() dialect.Version { return s.version }

// Registry returns the underlying store.
func (s *Settings) Registry() *Registry { return s.reg }

// DialectKeys lists the dialect-scoped keys for a property, most specific
// first: <id>_<major>_<minor>, <id>_<major>, <id>.
func (s *Settings) DialectKeys(prop string) []string {
	keys := make([]string, 0, 3)
	if s.version.Major > 0 {
		keys = append(keys,
			fmt.Sprintf("%s%s_%d_%d.%s", Prefix, s.id, s.version.Major, s.version.Minor, prop),
			fmt.Sprintf("%s%s_%d.%s", Prefix, s.id, s.version.Major, prop),
		)
	}
	return append(keys, Prefix+string(s.id)+"."+prop)
}

// GlobalKey returns the process-wide key for a property.
func GlobalKey(prop string) string {
	return Prefix + prop
}

// lookupDialect walks the dialect chain only.
func (s *Settings) lookupDialect(prop string) (string, bool) {
	for _, key := range s.DialectKeys(prop) {
		if v, ok := s.reg.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Lookup resolves a property through the dialect chain and then the
// process-wide default.
func (s *Settings) Lookup(prop string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g := s.reg.gen(); g != s.gen {
		s.cache = make(map[string]cached)
		s.gen = g
	}
	if c, ok := s.cache[prop]; ok {
		return c.value, c.found
	}

	v, ok := s.lookupDialect(prop)
	if !ok {
		v, ok = s.reg.Lookup(GlobalKey(prop))
	}
	s.cache[prop] = cached{value: v, found: ok}
	return v, ok
}

// String returns the property value or def when it is not set.
func (s *Settings) String(prop, def string) string {
	if v, ok := s.Lookup(prop); ok {
		return v
	}
	return def
}

// Template returns a SQL template. Templates are plain strings; the name
// documents intent at call sites.
func (s *Settings) Template(prop, def string) string {
	return s.String(prop, def)
}

// Bool returns the property as a boolean. Unparseable values yield def.
func (s *Settings) Bool(prop string, def bool) bool {
	v, ok := s.Lookup(prop)
	if !ok {
		return def
	}
	b, ok := parseBool(v)
	if !ok {
		return def
	}
	return b
}

// Int returns the property as an integer. Unparseable values yield def.
func (s *Settings) Int(prop string, def int) int {
	v, ok := s.Lookup(prop)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Regexp compiles the property as a regular expression. Empty or invalid
// patterns yield nil.
func (s *Settings) Regexp(prop string) *regexp.Regexp {
	v, ok := s.Lookup(prop)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	re, err := regexp.Compile(v)
	if err != nil {
		s.reg.logger.Warn("invalid capability pattern", "property", prop, "dialect", string(s.id), "error", err)
		return nil
	}
	return re
}

// List accumulates a list property from the least to the most specific
// level: caller default or process-wide value, then <id>, <id>_<major>,
// <id>_<major>_<minor>. Each level's tokens are applied with ApplyTokens,
// so "-x" removes x inherited from a previous level.
func (s *Settings) List(prop string, def []string) []string {
	base := append([]string(nil), def...)
	if v, ok := s.reg.Lookup(GlobalKey(prop)); ok {
		base = ApplyTokens(base, SplitList(v))
	}
	keys := s.DialectKeys(prop)
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := s.reg.Lookup(keys[i]); ok {
			base = ApplyTokens(base, SplitList(v))
		}
	}
	return base
}

// Map parses a list property of key=value pairs. Keys are upper-cased.
func (s *Settings) Map(prop string) map[string]string {
	out := make(map[string]string)
	for _, item := range s.List(prop, nil) {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// SplitList splits a comma separated capability value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ApplyTokens applies add/remove tokens to base. "-x" removes x
// (case-insensitive), anything else is appended unless already present.
func ApplyTokens(base, tokens []string) []string {
	out := append([]string(nil), base...)
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			out = remove(out, tok[1:])
			continue
		}
		if !containsFold(out, tok) {
			out = append(out, tok)
		}
	}
	return out
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if !strings.EqualFold(item, v) {
			out = append(out, item)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "t", "y":
		return true, true
	case "false", "0", "no", "off", "f", "n":
		return false, true
	}
	return false, false
}
