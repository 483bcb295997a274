// Package sqlscan provides conservative static analysis of SQL statement
// text: which tables does a statement reference. The tracker uses it to
// default a request's dependency set; the store uses it to derive the
// touched-table set of raw write statements.
package sqlscan

import (
	"regexp"
	"strings"
)

// validIdentifier matches plain SQL identifiers (table/column names).
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// tableKeywords are the keywords after which a table name may appear.
var tableKeywords = map[string]bool{
	"FROM":   true,
	"JOIN":   true,
	"INTO":   true,
	"UPDATE": true,
	"TABLE":  true, // CREATE/ALTER/DROP TABLE
}

// ReferencedTables conservatively extracts the table names a SQL statement
// references. Used to default a request's dependency set and to derive the
// touched-table set of raw write statements.
//
// This is a token scan, not a parser: it collects identifiers following
// FROM, JOIN, INTO, UPDATE and TABLE, including comma-separated FROM lists.
// Subqueries, quoting styles, and CTE names may produce false positives -
// which only cause a harmless extra re-fetch. An empty result means the
// statement's dependencies are unknown and must be treated as "any table"
// (false negatives would miss relevant changes, so the filter errs wide).
//
// Table names are reported lowercased; SQLite resolves names
// case-insensitively.
func ReferencedTables(sql string) []string {
	tokens := tokenizeSQL(sql)

	var tables []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.ToLower(strings.Trim(name, "`\"[]'"))
		if validIdentifier.MatchString(name) && !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}

	for i := 0; i < len(tokens); i++ {
		if !tableKeywords[strings.ToUpper(tokens[i])] {
			continue
		}
		// Take the identifier after the keyword, then any comma-separated
		// continuation ("FROM a, b").
		j := i + 1
		for j < len(tokens) {
			tok := tokens[j]
			if tok == "(" {
				break // subquery; its own FROM is scanned later
			}
			add(tok)
			if j+1 < len(tokens) && tokens[j+1] == "," {
				j += 2
				continue
			}
			break
		}
		i = j
	}
	return tables
}

// tokenizeSQL splits a statement into identifier-ish tokens and the
// punctuation the scanner cares about.
func tokenizeSQL(sql string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range sql {
		switch {
		case r == ',' || r == '(' || r == ')' || r == ';':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
