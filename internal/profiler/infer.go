package profiler

import (
	"strconv"
	"strings"
	"time"

	"dataprofiler/internal/profile"
)

// declaredTypeMap maps common declared source type names (SQL and otherwise,
// lowercased, parenthesized lengths stripped) to detected logical types.
// Declared types take precedence over value probing.
var declaredTypeMap = map[string]profile.DataType{
	"smallint":         profile.TypeNumeric,
	"int":              profile.TypeNumeric,
	"integer":          profile.TypeNumeric,
	"bigint":           profile.TypeNumeric,
	"serial":           profile.TypeNumeric,
	"bigserial":        profile.TypeNumeric,
	"decimal":          profile.TypeNumeric,
	"numeric":          profile.TypeNumeric,
	"real":             profile.TypeNumeric,
	"float":            profile.TypeNumeric,
	"float4":           profile.TypeNumeric,
	"float8":           profile.TypeNumeric,
	"double":           profile.TypeNumeric,
	"double precision": profile.TypeNumeric,
	"money":            profile.TypeNumeric,

	"bool":    profile.TypeBoolean,
	"boolean": profile.TypeBoolean,
	"bit":     profile.TypeBoolean,

	"date":        profile.TypeDateTime,
	"time":        profile.TypeDateTime,
	"datetime":    profile.TypeDateTime,
	"datetime2":   profile.TypeDateTime,
	"timestamp":   profile.TypeDateTime,
	"timestamptz": profile.TypeDateTime,

	"char":      profile.TypeString,
	"nchar":     profile.TypeString,
	"varchar":   profile.TypeString,
	"nvarchar":  profile.TypeString,
	"text":      profile.TypeString,
	"string":    profile.TypeString,
	"uuid":      profile.TypeString,
	"json":      profile.TypeString,
	"jsonb":     profile.TypeString,
	"character": profile.TypeString,
	"character varying": profile.TypeString,
}

// mapDeclaredType resolves a declared source type name. The second return is
// false when the name is unknown/empty and value probing must decide.
func mapDeclaredType(declared string) (profile.DataType, bool) {
	s := strings.ToLower(strings.TrimSpace(declared))
	if s == "" {
		return "", false
	}
	// Strip length/precision suffixes: varchar(255), numeric(10,2).
	if i := strings.IndexByte(s, '('); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	t, ok := declaredTypeMap[s]
	return t, ok
}

// resolveType infers the logical type of a column.
//
// Precedence is fixed and deterministic:
//  1. declared type mapping
//  2. boolean literal match (all sampled values)
//  3. numeric parse (all sampled values)
//  4. date parse (at least dateConfidence of sampled values)
//  5. string fallback
//
// Boolean runs before numeric so that 0/1 flag columns don't disappear into
// NUMERIC. String is a safe terminal fallback: type resolution never fails.
func resolveType(declared string, samples []string, dateConfidence float64) profile.DataType {
	if t, ok := mapDeclaredType(declared); ok {
		return t
	}

	seen := 0
	dates := 0
	allBool := true
	allNum := true
	for _, v := range samples {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen++
		if allBool {
			if _, ok := parseBoolLoose(v); !ok {
				allBool = false
			}
		}
		if allNum {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allNum = false
			}
		}
		if _, _, ok := parseTimeLoose(v); ok {
			dates++
		}
	}

	if seen == 0 {
		return profile.TypeString
	}
	if allBool {
		return profile.TypeBoolean
	}
	if allNum {
		return profile.TypeNumeric
	}
	if float64(dates)/float64(seen) >= dateConfidence {
		return profile.TypeDateTime
	}
	return profile.TypeString
}

// parseBoolLoose accepts the common boolean literal encodings,
// case-insensitive and whitespace-tolerant.
func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// timeLayouts is the ordered layout list tried per value, first match wins.
// Date-only layouts precede timestamps so the reported format for a date
// column is the date layout, not a zero-time timestamp layout.
var timeLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006 15:04:05",
}

// parseTimeLoose parses a value against timeLayouts, returning the parsed
// time and the winning layout.
func parseTimeLoose(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, "", false
	}
	for _, lay := range timeLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}
