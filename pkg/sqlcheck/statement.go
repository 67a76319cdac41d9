// Package sqlcheck validates generated SQL: statement shape, read-only
// enforcement, alias and column resolution, and scoping predicates.
// Validation classifies; it never mutates the SQL.
package sqlcheck

import "strings"

// Normalize trims whitespace and a single trailing semicolon.
func Normalize(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimRight(sql, " \t\n\r")
	if strings.HasSuffix(sql, ";") {
		sql = strings.TrimRight(strings.TrimSuffix(sql, ";"), " \t\n\r")
	}
	return sql
}

// HasMultipleStatements reports whether normalized SQL still contains a
// semicolon outside string literals, which means a second statement.
func HasMultipleStatements(sql string) bool {
	return hasSemicolonOutsideStrings(sql)
}

// hasSemicolonOutsideStrings scans with a small quote-aware state machine,
// handling both backslash escapes and SQL doubled-quote escapes.
func hasSemicolonOutsideStrings(sql string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sql {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters on the
			// next quote, which keeps the scan inside the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}
	return false
}

// stripStrings replaces string literal contents with spaces so token and
// pattern scans cannot be fooled by quoted text. Output length equals input.
func stripStrings(sql string) string {
	out := []rune(sql)
	inSingle := false
	inDouble := false
	prev := rune(0)

	for i, char := range out {
		switch {
		case inSingle:
			if char == '\'' && prev != '\\' {
				inSingle = false
			} else {
				out[i] = ' '
			}
		case inDouble:
			if char == '"' && prev != '\\' {
				inDouble = false
			}
		case char == '\'':
			inSingle = true
		case char == '"':
			inDouble = true
		}
		prev = char
	}
	return string(out)
}

// balancedParens reports whether parentheses outside strings are balanced.
func balancedParens(sql string) bool {
	depth := 0
	for _, char := range stripStrings(sql) {
		switch char {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// unterminatedString reports whether a string literal is left open.
func unterminatedString(sql string) bool {
	inSingle := false
	prev := rune(0)
	for _, char := range sql {
		if char == '\'' && prev != '\\' {
			inSingle = !inSingle
		}
		prev = char
	}
	return inSingle
}
