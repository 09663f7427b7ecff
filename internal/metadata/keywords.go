package metadata

import (
	"strings"
)

// sqlReserved are the SQL:2003 reserved words every dialect treats as
// reserved.
var sqlReserved = []string{
	"ALL", "ALLOCATE", "ALTER", "AND", "ANY", "ARE", "ARRAY", "AS", "ASENSITIVE",
	"ASYMMETRIC", "AT", "ATOMIC", "AUTHORIZATION", "BEGIN", "BETWEEN", "BIGINT",
	"BINARY", "BLOB", "BOOLEAN", "BOTH", "BY", "CALL", "CALLED", "CASCADED", "CASE",
	"CAST", "CHAR", "CHARACTER", "CHECK", "CLOB", "CLOSE", "COLLATE", "COLUMN",
	"COMMIT", "CONDITION", "CONNECT", "CONSTRAINT", "CONTINUE", "CORRESPONDING",
	"CREATE", "CROSS", "CUBE", "CURRENT", "CURRENT_DATE", "CURRENT_PATH",
	"CURRENT_ROLE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "CURRENT_USER", "CURSOR",
	"CYCLE", "DATE", "DAY", "DEALLOCATE", "DEC", "DECIMAL", "DECLARE", "DEFAULT",
	"DELETE", "DEREF", "DESCRIBE", "DETERMINISTIC", "DISCONNECT", "DISTINCT",
	"DOUBLE", "DROP", "DYNAMIC", "EACH", "ELEMENT", "ELSE", "END", "ESCAPE",
	"EXCEPT", "EXEC", "EXECUTE", "EXISTS", "EXTERNAL", "FALSE", "FETCH", "FILTER",
	"FLOAT", "FOR", "FOREIGN", "FREE", "FROM", "FULL", "FUNCTION", "GET", "GLOBAL",
	"GRANT", "GROUP", "GROUPING", "HAVING", "HOLD", "HOUR", "IDENTITY", "IN",
	"INDICATOR", "INNER", "INOUT", "INSENSITIVE", "INSERT", "INT", "INTEGER",
	"INTERSECT", "INTERVAL", "INTO", "IS", "JOIN", "LANGUAGE", "LARGE", "LATERAL",
	"LEADING", "LEFT", "LIKE", "LOCAL", "LOCALTIME", "LOCALTIMESTAMP", "MATCH",
	"MEMBER", "MERGE", "METHOD", "MINUTE", "MODIFIES", "MODULE", "MONTH",
	"MULTISET", "NATIONAL", "NATURAL", "NCHAR", "NCLOB", "NEW", "NO", "NONE", "NOT",
	"NULL", "NUMERIC", "OF", "OLD", "ON", "ONLY", "OPEN", "OR", "ORDER", "OUT",
	"OUTER", "OVER", "OVERLAPS", "PARAMETER", "PARTITION", "PRECISION", "PREPARE",
	"PRIMARY", "PROCEDURE", "RANGE", "READS", "REAL", "RECURSIVE", "REF",
	"REFERENCES", "REFERENCING", "RELEASE", "RETURN", "RETURNS", "REVOKE", "RIGHT",
	"ROLLBACK", "ROLLUP", "ROW", "ROWS", "SAVEPOINT", "SCOPE", "SCROLL", "SEARCH",
	"SECOND", "SELECT", "SENSITIVE", "SESSION_USER", "SET", "SIMILAR", "SMALLINT",
	"SOME", "SPECIFIC", "SPECIFICTYPE", "SQL", "SQLEXCEPTION", "SQLSTATE",
	"SQLWARNING", "START", "STATIC", "SUBMULTISET", "SYMMETRIC", "SYSTEM",
	"SYSTEM_USER", "TABLE", "TABLESAMPLE", "THEN", "TIME", "TIMESTAMP",
	"TIMEZONE_HOUR", "TIMEZONE_MINUTE", "TO", "TRAILING", "TRANSLATION", "TREAT",
	"TRIGGER", "TRUE", "UNION", "UNIQUE", "UNKNOWN", "UNNEST", "UPDATE", "USER",
	"USING", "VALUE", "VALUES", "VARCHAR", "VARYING", "WHEN", "WHENEVER", "WHERE",
	"WINDOW", "WITH", "WITHIN", "WITHOUT", "YEAR",
}

// sqlKeywords are non-reserved words that still read as SQL in a script.
var sqlKeywords = []string{
	"ABS", "ACTION", "ADD", "ADMIN", "AFTER", "ALWAYS", "ASC", "ASSERTION",
	"ATTRIBUTE", "AVG", "BEFORE", "BERNOULLI", "BREADTH", "CASCADE", "CATALOG",
	"CEIL", "CEILING", "CHAIN", "CHARACTERISTICS", "COALESCE", "COLLATION",
	"COMMENT", "COMMITTED", "CONSTRAINTS", "CONTAINS", "COUNT", "DATA", "DEFERRABLE",
	"DEFERRED", "DEFINER", "DEPTH", "DESC", "DOMAIN", "EXCLUDE", "EXCLUDING",
	"EXPLAIN", "FINAL", "FIRST", "FOLLOWING", "GENERATED", "GRANTED", "IF",
	"IMMEDIATE", "INCLUDING", "INCREMENT", "INDEX", "INITIALLY", "INPUT",
	"INSTANCE", "INVOKER", "ISOLATION", "KEY", "LAST", "LENGTH", "LEVEL", "LIMIT",
	"LOWER", "MATCHED", "MAX", "MAXVALUE", "MIN", "MINVALUE", "NAME", "NAMES",
	"NEXT", "NULLIF", "NULLS", "OBJECT", "OFFSET", "OPTION", "OPTIONS", "ORDERING",
	"OTHERS", "OVERRIDING", "PARTIAL", "PLACING", "PRECEDING", "PRESERVE", "PRIOR",
	"PRIVILEGES", "PUBLIC", "READ", "RENAME", "REPEATABLE", "REPLACE", "RESTART",
	"RESTRICT", "ROLE", "ROUTINE", "SCHEMA", "SECURITY", "SEQUENCE", "SERIALIZABLE",
	"SESSION", "SETS", "SIMPLE", "SIZE", "SOURCE", "SPACE", "STATEMENT", "STORAGE",
	"SUM", "TEMPORARY", "TIES", "TRANSACTION", "TRANSFORM", "TRUNCATE", "TYPE",
	"UNBOUNDED", "UNCOMMITTED", "UNDER", "UPPER", "USAGE", "VIEW", "WORK", "WRITE",
	"ZONE",
}

// keywordSet is built once per service and never modified afterwards.
type keywordSet struct {
	reserved map[string]struct{}
	keywords map[string]struct{}
}

func (k *keywordSet) add(m map[string]struct{}, words []string) {
	for _, w := range words {
		w = strings.ToUpper(strings.TrimSpace(w))
		if w != "" {
			m[w] = struct{}{}
		}
	}
}

// keywordSetLocked returns the lazily built keyword sets. s.mu must be held.
func (s *Service) keywordSetLocked() *keywordSet {
	if s.keywords != nil {
		return s.keywords
	}
	k := &keywordSet{
		reserved: make(map[string]struct{}),
		keywords: make(map[string]struct{}),
	}
	k.add(k.reserved, sqlReserved)
	k.add(k.reserved, s.product.Keywords)
	k.add(k.reserved, s.settings.List("reserved.words", nil))

	k.add(k.keywords, sqlKeywords)
	k.add(k.keywords, s.settings.List("keywords", nil))
	for w := range k.reserved {
		k.keywords[w] = struct{}{}
	}
	s.keywords = k
	return k
}

// IsReservedWord reports whether word is reserved in the dialect and
// therefore needs quoting when used as an identifier.
func (s *Service) IsReservedWord(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keywordSetLocked().reserved[strings.ToUpper(word)]
	return ok
}

// IsKeyword reports whether word is any SQL keyword, reserved or not.
func (s *Service) IsKeyword(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keywordSetLocked().keywords[strings.ToUpper(word)]
	return ok
}
