// Package ddl reconstructs CREATE TABLE, index, constraint, comment,
// grant and drop statements from table metadata and dialect templates.
package ddl

import (
	"regexp"
	"strings"
)

// Placeholders understood by the built-in templates.
const (
	PlaceholderTypeModifier     = "typemodifier"
	PlaceholderFQTableName      = "fq_table_name"
	PlaceholderTableName        = "table_name"
	PlaceholderSchema           = "schema"
	PlaceholderConstraintName   = "constraint_name"
	PlaceholderColumnList       = "columnlist"
	PlaceholderTargetTable      = "targettable"
	PlaceholderTargetColumnList = "targetcolumnlist"
	PlaceholderFKUpdateRule     = "fk_update_rule"
	PlaceholderFKDeleteRule     = "fk_delete_rule"
	PlaceholderDeferrable       = "deferrable"
	PlaceholderUniqueKey        = "unique_key"
	PlaceholderIndexName        = "index_name"
	PlaceholderIndexType        = "index_type"
	PlaceholderTablespace       = "tablespace"
	PlaceholderComment          = "comment"
	PlaceholderColumn           = "column"
	PlaceholderPrivilege        = "privilege"
	PlaceholderGrantee          = "grantee"
	PlaceholderGrantOption      = "grant_option"
	PlaceholderObjectType       = "object_type"
	PlaceholderCascade          = "cascade"
)

// Values maps placeholder names (without the surrounding %) to their
// replacement. A key mapped to "" marks an absent optional value.
type Values map[string]string

var placeholderRe = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// optionalKeywords introduce a value and are removed with it.
var optionalKeywords = []string{"CONSTRAINT", "TABLESPACE", "USING"}

// Apply substitutes %name% placeholders in one pass. A placeholder whose
// value is "" is removed together with a directly preceding CONSTRAINT,
// TABLESPACE or USING keyword, and the surrounding blanks collapse to a
// single space. Placeholders without an entry in values are left as they
// are. Trailing blanks are trimmed from every line.
func Apply(template string, values Values) string {
	var b strings.Builder
	b.Grow(len(template))

	removed := false
	write := func(s string) {
		if s == "" {
			return
		}
		if removed {
			s = strings.TrimLeft(s, " \t")
			if s == "" {
				return
			}
			out := b.String()
			if out != "" && !strings.HasSuffix(out, "\n") && !strings.HasSuffix(out, "(") &&
				!strings.ContainsAny(s[:1], ");,\n") {
				b.WriteByte(' ')
			}
			removed = false
		}
		b.WriteString(s)
	}

	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(template, -1) {
		write(template[last:m[0]])
		last = m[1]

		name := template[m[2]:m[3]]
		value, known := values[name]
		switch {
		case !known:
			write(template[m[0]:m[1]])
		case value == "":
			out := dropOptionalKeyword(strings.TrimRight(b.String(), " \t"))
			b.Reset()
			b.WriteString(out)
			removed = true
		default:
			write(value)
		}
	}
	write(template[last:])

	return trimLines(b.String())
}

// dropOptionalKeyword removes a trailing optional keyword and the blanks
// before it.
func dropOptionalKeyword(s string) string {
	upper := strings.ToUpper(s)
	for _, kw := range optionalKeywords {
		if !strings.HasSuffix(upper, kw) {
			continue
		}
		rest := s[:len(s)-len(kw)]
		if rest != "" && !strings.ContainsAny(rest[len(rest)-1:], " \t\n(") {
			// Part of a longer word.
			continue
		}
		return strings.TrimRight(rest, " \t")
	}
	return s
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.Join(lines, "\n")
}
