package output

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Literal renders a value as a SQL literal. NULL is represented as NULL.
func Literal(val any) string {
	if val == nil {
		return "NULL"
	}

	switch v := val.(type) {
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'"
	case time.Time:
		return Quote(v.Format("2006-01-02 15:04:05.999999"))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", v)
	case string:
		return Quote(v)
	case fmt.Stringer:
		return Quote(v.String())
	default:
		return Quote(fmt.Sprintf("%v", v))
	}
}

// Quote wraps s in single quotes.
func Quote(s string) string {
	return "'" + EscapeString(s) + "'"
}

// EscapeString doubles single quotes and drops NUL bytes, which no
// dialect accepts inside a string literal.
func EscapeString(s string) string {
	if !strings.ContainsAny(s, "'\x00") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("''")
		case 0:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
