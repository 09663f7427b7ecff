package capability

import (
	"strings"
	"unicode"
)

// Wildcard in the max-rows verb set makes max-rows apply to every statement.
const Wildcard = "*"

// UpdatingVerbs is the union of the process-wide and dialect
// "updatingcommands" lists. Removal tokens are not honoured here: a dialect
// can only widen the set of statements treated as writes.
func (s *Settings) UpdatingVerbs() []string {
	var out []string
	add := func(v string) {
		for _, tok := range SplitList(v) {
			if strings.HasPrefix(tok, "-") {
				continue
			}
			if !containsFold(out, tok) {
				out = append(out, strings.ToUpper(tok))
			}
		}
	}
	if v, ok := s.reg.Lookup(GlobalKey("updatingcommands")); ok {
		add(v)
	}
	if v, ok := s.lookupDialect("updatingcommands"); ok {
		add(v)
	}
	return out
}

// IsUpdatingStatement reports whether sql starts with an updating verb.
func (s *Settings) IsUpdatingStatement(sql string) bool {
	verb := Verb(sql)
	if verb == "" {
		return false
	}
	return containsFold(s.UpdatingVerbs(), verb)
}

// MaxRowsVerbs returns the process-wide "maxrows.verbs" list adjusted by the
// dialect's add/remove tokens.
func (s *Settings) MaxRowsVerbs() []string {
	return s.List("maxrows.verbs", nil)
}

// ApplyMaxRows reports whether a max-rows limit applies to sql.
func (s *Settings) ApplyMaxRows(sql string) bool {
	verbs := s.MaxRowsVerbs()
	if containsFold(verbs, Wildcard) {
		return true
	}
	verb := Verb(sql)
	return verb != "" && containsFold(verbs, verb)
}

// Verb returns the first keyword of a statement, upper-cased, skipping
// leading whitespace, "--" line comments and "/* */" block comments.
func Verb(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}
