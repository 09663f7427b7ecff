package schema

import (
	"fmt"
	"slices"
	"strings"
)

// SQLType is a driver-neutral column type code. Values follow the JDBC
// java.sql.Types constants so that capability files written for other
// tools keep their meaning.
type SQLType int

const (
	TypeBit           SQLType = -7
	TypeTinyInt       SQLType = -6
	TypeSmallInt      SQLType = 5
	TypeInteger       SQLType = 4
	TypeBigInt        SQLType = -5
	TypeFloat         SQLType = 6
	TypeReal          SQLType = 7
	TypeDouble        SQLType = 8
	TypeNumeric       SQLType = 2
	TypeDecimal       SQLType = 3
	TypeChar          SQLType = 1
	TypeVarchar       SQLType = 12
	TypeLongVarchar   SQLType = -1
	TypeDate          SQLType = 91
	TypeTime          SQLType = 92
	TypeTimestamp     SQLType = 93
	TypeBinary        SQLType = -2
	TypeVarbinary     SQLType = -3
	TypeLongVarbinary SQLType = -4
	TypeNull          SQLType = 0
	TypeOther         SQLType = 1111
	TypeJavaObject    SQLType = 2000
	TypeDistinct      SQLType = 2001
	TypeStruct        SQLType = 2002
	TypeArray         SQLType = 2003
	TypeBlob          SQLType = 2004
	TypeClob          SQLType = 2005
	TypeRef           SQLType = 2006
	TypeBoolean       SQLType = 16
	TypeRowID         SQLType = -8
	TypeNChar         SQLType = -15
	TypeNVarchar      SQLType = -9
	TypeLongNVarchar  SQLType = -16
	TypeNClob         SQLType = 2011
	TypeSQLXML        SQLType = 2009
	TypeTimeTZ        SQLType = 2013
	TypeTimestampTZ   SQLType = 2014
)

// IsNumeric reports integer and fractional number types.
func (t SQLType) IsNumeric() bool {
	switch t {
	case TypeBit, TypeTinyInt, TypeSmallInt, TypeInteger, TypeBigInt,
		TypeFloat, TypeReal, TypeDouble, TypeNumeric, TypeDecimal:
		return true
	}
	return false
}

// IsDecimal reports types whose display carries precision and scale.
func (t SQLType) IsDecimal() bool {
	return t == TypeNumeric || t == TypeDecimal
}

// IsCharacter reports length-bounded character types.
func (t SQLType) IsCharacter() bool {
	switch t {
	case TypeChar, TypeVarchar, TypeNChar, TypeNVarchar:
		return true
	}
	return false
}

// IsBinary reports length-bounded binary types.
func (t SQLType) IsBinary() bool {
	return t == TypeBinary || t == TypeVarbinary
}

// IsTemporal reports date and time types.
func (t SQLType) IsTemporal() bool {
	switch t {
	case TypeDate, TypeTime, TypeTimestamp, TypeTimeTZ, TypeTimestampTZ:
		return true
	}
	return false
}

var typeNames = map[string]SQLType{
	"bit": TypeBit, "tinyint": TypeTinyInt, "smallint": TypeSmallInt, "int2": TypeSmallInt,
	"integer": TypeInteger, "int": TypeInteger, "int4": TypeInteger, "mediumint": TypeInteger,
	"serial": TypeInteger, "bigint": TypeBigInt, "int8": TypeBigInt, "bigserial": TypeBigInt,
	"hugeint": TypeBigInt, "float": TypeFloat, "float8": TypeDouble, "double": TypeDouble,
	"double precision": TypeDouble, "real": TypeReal, "float4": TypeReal,
	"numeric": TypeNumeric, "number": TypeNumeric, "decimal": TypeDecimal, "money": TypeDecimal,
	"char": TypeChar, "character": TypeChar, "bpchar": TypeChar, "nchar": TypeNChar,
	"varchar": TypeVarchar, "character varying": TypeVarchar, "varchar2": TypeVarchar,
	"nvarchar": TypeNVarchar, "nvarchar2": TypeNVarchar, "string": TypeVarchar,
	"text": TypeLongVarchar, "longtext": TypeLongVarchar, "mediumtext": TypeLongVarchar,
	"ntext": TypeLongNVarchar, "clob": TypeClob, "nclob": TypeNClob,
	"date": TypeDate, "time": TypeTime, "timetz": TypeTimeTZ, "time with time zone": TypeTimeTZ,
	"timestamp": TypeTimestamp, "datetime": TypeTimestamp, "datetime2": TypeTimestamp,
	"timestamp without time zone": TypeTimestamp, "timestamptz": TypeTimestampTZ,
	"timestamp with time zone": TypeTimestampTZ, "datetimeoffset": TypeTimestampTZ,
	"binary": TypeBinary, "varbinary": TypeVarbinary, "bytea": TypeLongVarbinary,
	"blob": TypeBlob, "longblob": TypeBlob, "image": TypeLongVarbinary, "raw": TypeVarbinary,
	"boolean": TypeBoolean, "bool": TypeBoolean, "xml": TypeSQLXML, "rowid": TypeRowID,
	"array": TypeArray, "struct": TypeStruct,
}

// TypeFromName guesses the type code for a product type name such as
// "varchar" or "timestamp with time zone". Unknown names map to TypeOther.
func TypeFromName(name string) SQLType {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	if strings.HasSuffix(n, "[]") {
		return TypeArray
	}
	if t, ok := typeNames[n]; ok {
		return t
	}
	if strings.HasPrefix(n, "unsigned ") {
		return TypeFromName(strings.TrimPrefix(n, "unsigned "))
	}
	if strings.HasSuffix(n, " unsigned") {
		return TypeFromName(strings.TrimSuffix(n, " unsigned"))
	}
	return TypeOther
}

// maxDisplaySize hides driver-reported sizes for unbounded types.
const maxDisplaySize = 2147483647

// Column describes one table column. Identity is the case-insensitive
// unquoted name; use IsEqualTo to compare full definitions.
type Column struct {
	Name     string
	Quoted   bool
	Alias    string
	DataType SQLType
	DbmsType string
	Size     int
	Digits   int
	Nullable bool
	IsPK     bool
	// Position is 1-based; 0 means unknown.
	Position int

	Default       string
	DefaultClause string
	Computed      string
	Constraint    string
	Comment       string
}

// Key is the identity key used for set membership.
func (c Column) Key() string {
	return strings.ToLower(c.Name)
}

// SameAs reports whether both columns have the same identity.
func (c Column) SameAs(o Column) bool {
	return c.Key() == o.Key()
}

// IsEqualTo compares full definitions: identity, type, size, nullability,
// default and computed expression.
func (c Column) IsEqualTo(o Column) bool {
	return c.SameAs(o) &&
		c.DataType == o.DataType &&
		strings.EqualFold(c.DbmsType, o.DbmsType) &&
		c.Size == o.Size &&
		c.Digits == o.Digits &&
		c.Nullable == o.Nullable &&
		strings.TrimSpace(c.Default) == strings.TrimSpace(o.Default) &&
		strings.TrimSpace(c.Computed) == strings.TrimSpace(o.Computed)
}

// DisplayType renders the column type with size and scale where the type
// carries them, e.g. DECIMAL(10,2) or VARCHAR(50).
func (c Column) DisplayType() string {
	t := c.DbmsType
	if t == "" {
		t = "UNKNOWN"
	}
	if strings.Contains(t, "(") || c.Size <= 0 || c.Size >= maxDisplaySize {
		return t
	}
	switch {
	case c.DataType.IsDecimal():
		if c.Digits > 0 {
			return fmt.Sprintf("%s(%d,%d)", t, c.Size, c.Digits)
		}
		return fmt.Sprintf("%s(%d)", t, c.Size)
	case c.DataType.IsCharacter(), c.DataType.IsBinary():
		return fmt.Sprintf("%s(%d)", t, c.Size)
	}
	return t
}

// DefaultText returns the DEFAULT clause for the column, or "".
func (c Column) DefaultText(keyword string) string {
	if c.DefaultClause != "" {
		return c.DefaultClause
	}
	if strings.TrimSpace(c.Default) == "" {
		return ""
	}
	if keyword == "" {
		keyword = "DEFAULT"
	}
	return keyword + " " + strings.TrimSpace(c.Default)
}

// SortByPosition orders columns by ordinal, keeping unknown positions last.
func SortByPosition(cols []Column) {
	slices.SortStableFunc(cols, func(a, b Column) int {
		switch {
		case a.Position == b.Position:
			return 0
		case a.Position == 0:
			return 1
		case b.Position == 0:
			return -1
		}
		return a.Position - b.Position
	})
}

// PKFirst returns a copy with primary key columns moved to the front.
// Positions are not modified.
func PKFirst(cols []Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.IsPK {
			out = append(out, c)
		}
	}
	for _, c := range cols {
		if !c.IsPK {
			out = append(out, c)
		}
	}
	return out
}
