package normalizer

import (
	"fmt"
	"strings"
)

var verbs = map[string]struct{}{
	"SELECT": {},
	"INSERT": {},
	"UPDATE": {},
	"DELETE": {},
}

// ExtractTitle builds a short display title such as "SELECT FROM users" from
// an unredacted token stream.
//
// The verb is the first SELECT, INSERT, UPDATE or DELETE keyword at the
// shallowest parenthesis depth; the table is the first name that follows the
// verb's FROM (SELECT, DELETE), INTO (INSERT) or the verb itself (UPDATE).
// Quotes around table names are stripped.
//
// Returns ErrNoVerb when no verb exists and ErrNoTable when the verb has no
// table.
func ExtractTitle(tokens []Token) (string, error) {
	sig, depth := structure(tokens)

	verb := -1
	for i, tok := range sig {
		if tok.Kind != Keyword {
			continue
		}
		if _, ok := verbs[strings.ToUpper(tok.Text)]; !ok {
			continue
		}
		if verb < 0 || depth[i] < depth[verb] {
			verb = i
		}
		if depth[verb] == 0 {
			break
		}
	}
	if verb < 0 {
		return "", ErrNoVerb
	}

	name := strings.ToUpper(sig[verb].Text)
	var (
		table string
		title string
	)
	switch name {
	case "SELECT", "DELETE":
		if from := findKeyword(sig, depth, verb, "FROM"); from >= 0 {
			table = tableName(sig, from+1)
		}
		title = name + " FROM "
	case "INSERT":
		if into := leadingKeyword(sig, verb, "INTO"); into >= 0 {
			table = tableName(sig, into+1)
		}
		title = name + " INTO "
	case "UPDATE":
		table = tableName(sig, verb+1)
		title = name + " "
	}

	if table == "" {
		return "", fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	return title + table, nil
}

// structure drops whitespace and records the parenthesis depth of every
// remaining token. Parens carry the depth of the level they open or close.
func structure(tokens []Token) ([]Token, []int) {
	sig := make([]Token, 0, len(tokens))
	depth := make([]int, 0, len(tokens))

	d := 0
	for _, tok := range tokens {
		switch {
		case tok.Kind == Whitespace:
			continue
		case tok.is("("):
			sig, depth = append(sig, tok), append(depth, d)
			d++
			continue
		case tok.is(")"):
			if d > 0 {
				d--
			}
		}
		sig, depth = append(sig, tok), append(depth, d)
	}
	return sig, depth
}

// findKeyword returns the index of the first keyword after verb at the verb's
// depth, stopping when the enclosing group closes.
func findKeyword(sig []Token, depth []int, verb int, keyword string) int {
	for i := verb + 1; i < len(sig); i++ {
		if depth[i] < depth[verb] {
			return -1
		}
		if depth[i] == depth[verb] && sig[i].Kind == Keyword && strings.EqualFold(sig[i].Text, keyword) {
			return i
		}
	}
	return -1
}

// leadingKeyword finds keyword among the run of keywords directly after verb,
// as in INSERT IGNORE INTO or INSERT OR REPLACE INTO.
func leadingKeyword(sig []Token, verb int, keyword string) int {
	for i := verb + 1; i < len(sig) && sig[i].Kind == Keyword; i++ {
		if strings.EqualFold(sig[i].Text, keyword) {
			return i
		}
	}
	return -1
}

var tableModifiers = map[string]struct{}{
	"ONLY":         {},
	"IGNORE":       {},
	"LOW_PRIORITY": {},
}

// tableName reads a possibly qualified name starting at sig[i], skipping
// modifiers such as ONLY. Returns "" when no name is there.
func tableName(sig []Token, i int) string {
	for i < len(sig) && sig[i].Kind == Keyword {
		if _, ok := tableModifiers[strings.ToUpper(sig[i].Text)]; !ok {
			return ""
		}
		i++
	}

	var parts []string
	for i < len(sig) && (sig[i].Kind == Identifier || sig[i].Kind == QuotedIdentifier) {
		parts = append(parts, unquote(sig[i]))
		if i+1 >= len(sig) || !sig[i+1].is(".") {
			break
		}
		i += 2
	}
	return strings.Join(parts, ".")
}

func unquote(tok Token) string {
	if tok.Kind != QuotedIdentifier || len(tok.Text) < 2 {
		return tok.Text
	}
	q := tok.Text[:1]
	text := tok.Text[1:]
	text = strings.TrimSuffix(text, q)
	return strings.ReplaceAll(text, q+q, q)
}
