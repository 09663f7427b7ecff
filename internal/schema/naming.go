package schema

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StoreCase is the case a dialect stores unquoted identifiers in.
type StoreCase int

const (
	CaseUpper StoreCase = iota
	CaseLower
	CaseMixed
)

// ParseStoreCase maps "upper", "lower" or "mixed" to a StoreCase.
func ParseStoreCase(s string) (StoreCase, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upper":
		return CaseUpper, true
	case "lower":
		return CaseLower, true
	case "mixed":
		return CaseMixed, true
	}
	return CaseUpper, false
}

func (c StoreCase) String() string {
	switch c {
	case CaseLower:
		return "lower"
	case CaseMixed:
		return "mixed"
	default:
		return "upper"
	}
}

// DefaultIdentifierPattern accepts plain SQL identifiers.
var DefaultIdentifierPattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_$#]*$`)

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// Naming holds a dialect's identifier rules.
type Naming struct {
	QuoteOpen        string
	QuoteClose       string
	SchemaSeparator  string
	CatalogSeparator string

	SupportsCatalogs bool
	SupportsSchemas  bool
	StoreCase        StoreCase
	NeverQuote       bool

	IdentifierPattern *regexp.Regexp
	Reserved          func(word string) bool

	CurrentCatalog string
	CurrentSchema  string
	IgnoreCatalogs []string
	IgnoreSchemas  []string

	OmitCurrentCatalog bool
	OmitCurrentSchema  bool
}

// DefaultNaming returns ANSI identifier rules: double quotes, dot
// separators, upper-case storage.
func DefaultNaming() Naming {
	return Naming{
		QuoteOpen:        `"`,
		QuoteClose:       `"`,
		SchemaSeparator:  ".",
		CatalogSeparator: ".",
		SupportsCatalogs: true,
		SupportsSchemas:  true,
		StoreCase:        CaseUpper,
	}
}

// SetQuote sets the quote character. "[" closes with "]".
func (n *Naming) SetQuote(open string) {
	n.QuoteOpen = open
	switch open {
	case "[":
		n.QuoteClose = "]"
	default:
		n.QuoteClose = open
	}
}

func (n Naming) schemaSep() string {
	if n.SchemaSeparator == "" {
		return "."
	}
	return n.SchemaSeparator
}

func (n Naming) catalogSep() string {
	if n.CatalogSeparator == "" {
		return n.schemaSep()
	}
	return n.CatalogSeparator
}

func (n Naming) quotes() (string, string) {
	if n.QuoteOpen == "" {
		return `"`, `"`
	}
	if n.QuoteClose == "" {
		return n.QuoteOpen, n.QuoteOpen
	}
	return n.QuoteOpen, n.QuoteClose
}

// NeedsQuotes reports whether an unquoted name must be quoted to keep its
// meaning: it contains whitespace, fails the identifier pattern, has a case
// that disagrees with the storage case, or is a reserved word.
func (n Naming) NeedsQuotes(name string) bool {
	if name == "" {
		return false
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return true
	}
	pattern := n.IdentifierPattern
	if pattern == nil {
		pattern = DefaultIdentifierPattern
	}
	if !pattern.MatchString(name) {
		return true
	}
	switch n.StoreCase {
	case CaseUpper:
		if upperCaser.String(name) != name {
			return true
		}
	case CaseLower:
		if lowerCaser.String(name) != name {
			return true
		}
	}
	if n.Reserved != nil && n.Reserved(name) {
		return true
	}
	return false
}

// IsQuoted reports whether s is wrapped in the dialect's quote characters.
func (n Naming) IsQuoted(s string) bool {
	open, closeQ := n.quotes()
	return len(s) >= len(open)+len(closeQ) && strings.HasPrefix(s, open) && strings.HasSuffix(s, closeQ)
}

// Quote wraps name in quote characters, doubling embedded closing quotes.
func (n Naming) Quote(name string) string {
	open, closeQ := n.quotes()
	return open + strings.ReplaceAll(name, closeQ, closeQ+closeQ) + closeQ
}

// Unquote removes the dialect's quote characters if present.
func (n Naming) Unquote(s string) string {
	if !n.IsQuoted(s) {
		return s
	}
	open, closeQ := n.quotes()
	inner := s[len(open) : len(s)-len(closeQ)]
	return strings.ReplaceAll(inner, closeQ+closeQ, closeQ)
}

// QuoteName renders one identifier part. Never-quote dialects get the bare
// name, names that were quoted keep their quotes, others are quoted only
// when NeedsQuotes says so.
func (n Naming) QuoteName(name string, wasQuoted bool) string {
	if name == "" {
		return ""
	}
	if n.NeverQuote {
		return name
	}
	if wasQuoted || n.NeedsQuotes(name) {
		return n.Quote(name)
	}
	return name
}

// QuoteObjectName quotes a single name when needed. Already quoted input is
// returned unchanged, so the function is idempotent.
func (n Naming) QuoteObjectName(name string) string {
	if name == "" || n.IsQuoted(name) {
		return name
	}
	if n.NeverQuote || !n.NeedsQuotes(name) {
		return name
	}
	return n.Quote(name)
}

// QuoteColumn renders a column name.
func (n Naming) QuoteColumn(c Column) string {
	return n.QuoteName(c.Name, c.Quoted)
}

// Parse splits a possibly qualified, possibly quoted name. One to four
// parts are accepted: name, schema.name (or catalog.name for dialects
// without schemas), catalog.schema.name and server.catalog.schema.name.
func (n Naming) Parse(text string) QualifiedName {
	text = strings.TrimSpace(text)
	var q QualifiedName
	if text == "" {
		return q
	}

	// Dialects with a distinct catalog separator (db:owner.table).
	if cs := n.catalogSep(); cs != n.schemaSep() {
		if head, rest, ok := n.cutUnquoted(text, cs); ok {
			q.Catalog, q.CatalogQuoted = n.unquoteToken(head)
			sub := n.Parse(rest)
			q.Schema, q.SchemaQuoted = sub.Schema, sub.SchemaQuoted
			if q.Schema == "" && sub.Catalog != "" {
				q.Schema, q.SchemaQuoted = sub.Catalog, sub.CatalogQuoted
			}
			q.Name, q.NameQuoted = sub.Name, sub.NameQuoted
			return q
		}
	}

	tokens := n.tokenize(text, n.schemaSep())
	if len(tokens) > 4 {
		server := strings.Join(tokens[:len(tokens)-3], n.schemaSep())
		tokens = append([]string{server}, tokens[len(tokens)-3:]...)
	}

	switch len(tokens) {
	case 1:
		q.Name, q.NameQuoted = n.unquoteToken(tokens[0])
	case 2:
		if !n.SupportsSchemas && n.SupportsCatalogs {
			q.Catalog, q.CatalogQuoted = n.unquoteToken(tokens[0])
		} else {
			q.Schema, q.SchemaQuoted = n.unquoteToken(tokens[0])
		}
		q.Name, q.NameQuoted = n.unquoteToken(tokens[1])
	case 3:
		q.Catalog, q.CatalogQuoted = n.unquoteToken(tokens[0])
		q.Schema, q.SchemaQuoted = n.unquoteToken(tokens[1])
		q.Name, q.NameQuoted = n.unquoteToken(tokens[2])
	case 4:
		q.Server, _ = n.unquoteToken(tokens[0])
		q.Catalog, q.CatalogQuoted = n.unquoteToken(tokens[1])
		q.Schema, q.SchemaQuoted = n.unquoteToken(tokens[2])
		q.Name, q.NameQuoted = n.unquoteToken(tokens[3])
	}
	return q
}

// closingQuote returns the closing delimiter for an opening quote rune, or
// "" when c does not start a quoted token.
func (n Naming) closingQuote(c string) string {
	open, closeQ := n.quotes()
	switch c {
	case open:
		return closeQ
	case `"`:
		return `"`
	case "`":
		return "`"
	case "[":
		return "]"
	}
	return ""
}

// tokenize splits text on sep outside of quoted sections.
func (n Naming) tokenize(text, sep string) []string {
	var tokens []string
	var cur strings.Builder
	closeQ := ""
	for i := 0; i < len(text); {
		rest := text[i:]
		if closeQ != "" {
			if strings.HasPrefix(rest, closeQ) {
				// Doubled closing quote is an escaped quote.
				if strings.HasPrefix(rest[len(closeQ):], closeQ) {
					cur.WriteString(closeQ + closeQ)
					i += 2 * len(closeQ)
					continue
				}
				cur.WriteString(closeQ)
				i += len(closeQ)
				closeQ = ""
				continue
			}
			cur.WriteByte(text[i])
			i++
			continue
		}
		if strings.HasPrefix(rest, sep) {
			tokens = append(tokens, strings.TrimSpace(cur.String()))
			cur.Reset()
			i += len(sep)
			continue
		}
		if c := n.closingQuote(rest[:1]); c != "" {
			closeQ = c
		}
		cur.WriteByte(text[i])
		i++
	}
	return append(tokens, strings.TrimSpace(cur.String()))
}

func (n Naming) cutUnquoted(text, sep string) (string, string, bool) {
	parts := n.tokenize(text, sep)
	if len(parts) < 2 {
		return "", "", false
	}
	// tokenize trims, so rejoin the tail with the original separator.
	return parts[0], strings.Join(parts[1:], sep), true
}

func (n Naming) unquoteToken(tok string) (string, bool) {
	tok = strings.TrimSpace(tok)
	if len(tok) < 2 {
		return tok, false
	}
	closeQ := n.closingQuote(tok[:1])
	if closeQ == "" || !strings.HasSuffix(tok, closeQ) {
		return tok, false
	}
	inner := tok[1 : len(tok)-len(closeQ)]
	return strings.ReplaceAll(inner, closeQ+closeQ, closeQ), true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func (n Naming) omitCatalog(q QualifiedName) bool {
	if !n.SupportsCatalogs || q.Catalog == "" {
		return true
	}
	if containsFold(n.IgnoreCatalogs, q.Catalog) {
		return true
	}
	return n.OmitCurrentCatalog && n.CurrentCatalog != "" && strings.EqualFold(q.Catalog, n.CurrentCatalog)
}

func (n Naming) omitSchema(q QualifiedName) bool {
	if !n.SupportsSchemas || q.Schema == "" {
		return true
	}
	if containsFold(n.IgnoreSchemas, q.Schema) {
		return true
	}
	return n.OmitCurrentSchema && n.CurrentSchema != "" && strings.EqualFold(q.Schema, n.CurrentSchema)
}

// Render returns the dialect-correct text for q, leaving out namespaces
// that are implied by the connection or configured as ignorable. The
// schema is kept whenever the catalog is written, so the text parses back
// to the same object.
func (n Naming) Render(q QualifiedName) string {
	if q.NewTable {
		return NewTablePlaceholder
	}
	skipCatalog := n.omitCatalog(q)
	skipSchema := n.omitSchema(q)
	if !skipCatalog && n.SupportsSchemas && q.Schema != "" {
		skipSchema = false
	}
	return n.render(q, skipCatalog, skipSchema)
}

// RenderFull returns the fully qualified text for q. Parts the dialect does
// not support are still left out.
func (n Naming) RenderFull(q QualifiedName) string {
	if q.NewTable {
		return NewTablePlaceholder
	}
	return n.render(q, !n.SupportsCatalogs || q.Catalog == "", !n.SupportsSchemas || q.Schema == "")
}

func (n Naming) render(q QualifiedName, skipCatalog, skipSchema bool) string {
	var b strings.Builder
	if q.Server != "" && !skipCatalog {
		b.WriteString(n.QuoteName(q.Server, false))
		b.WriteString(n.schemaSep())
	}
	if !skipCatalog {
		b.WriteString(n.QuoteName(q.Catalog, q.CatalogQuoted))
		if skipSchema {
			b.WriteString(n.catalogSep())
		}
	}
	if !skipSchema {
		if !skipCatalog {
			if n.catalogSep() != n.schemaSep() {
				b.WriteString(n.catalogSep())
			} else {
				b.WriteString(n.schemaSep())
			}
		}
		b.WriteString(n.QuoteName(q.Schema, q.SchemaQuoted))
		b.WriteString(n.schemaSep())
	}
	b.WriteString(n.QuoteName(q.Name, q.NameQuoted))
	return b.String()
}

// AdjustCase folds every unquoted part to the storage case. Quoted parts
// and case-locked identifiers are left alone. The result is a copy.
func (n Naming) AdjustCase(q QualifiedName) QualifiedName {
	c := q.Copy()
	if c.CaseLocked || n.StoreCase == CaseMixed {
		return c
	}
	if !c.CatalogQuoted {
		c.Catalog = n.FoldCase(c.Catalog)
	}
	if !c.SchemaQuoted {
		c.Schema = n.FoldCase(c.Schema)
	}
	if !c.NameQuoted {
		c.Name = n.FoldCase(c.Name)
	}
	return c
}

// FoldCase converts a single unquoted name to the storage case.
func (n Naming) FoldCase(name string) string {
	switch n.StoreCase {
	case CaseUpper:
		return upperCaser.String(name)
	case CaseLower:
		return lowerCaser.String(name)
	default:
		return name
	}
}
