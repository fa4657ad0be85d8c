package normalizer

import (
	"strings"
)

// Placeholder replaces every literal and bind parameter in a redacted statement.
const Placeholder = "?"

// Redact renders tokens back to SQL with every literal and bind parameter
// replaced by Placeholder.
//
// Keywords, identifiers and punctuation are written verbatim. Whitespace runs
// and comments collapse to a single space, a comma is always followed by one
// space, and no space is written after "(", "[" or "::" or before ")", "]",
// "," or "::". Numeric subscripts such as items[1] are kept, and an IN list
// made only of values collapses to a single placeholder.
//
// Example:
//
//	Redact(toks) // "select * from foo where id not in ?"
func Redact(tokens []Token) string {
	var (
		b         strings.Builder
		prev      Token
		started   bool
		gap       bool
		subscript []bool
	)
	b.Grow(len(tokens) * 4)

	write := func(tok Token, text string) {
		if started && spaced(prev, tok, gap) {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		prev, started, gap = tok, true, false
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		text := tok.Text

		switch {
		case tok.Kind == Whitespace:
			gap = true
			continue
		case tok.Kind == Operator:
			text = collapseSpace(text)
			if isListOperator(text) {
				if end, ok := valueList(tokens, i+1); ok {
					write(tok, text+" "+Placeholder)
					// the list is gone; spacing continues as if it closed here
					prev = tokens[end]
					i = end
					continue
				}
			}
		case tok.IsValue():
			if !(inSubscript(subscript) && tok.Kind == Literal && isNumeric(text)) {
				text = Placeholder
			}
		case tok.is("["):
			subscript = append(subscript, started && !gap && indexable(prev))
		case tok.is("]"):
			if len(subscript) > 0 {
				subscript = subscript[:len(subscript)-1]
			}
		}

		write(tok, text)
	}

	return b.String()
}

// spaced reports whether a single space goes between prev and cur.
func spaced(prev, cur Token, gap bool) bool {
	if prev.is(",") {
		return !cur.is(")")
	}
	if !gap {
		return false
	}
	if cur.is(",") || cur.is(")") || cur.is("]") || cur.is("::") {
		return false
	}
	return !prev.is("(") && !prev.is("[") && !prev.is("::")
}

// indexable reports whether a "[" right after tok is an array subscript
// rather than an array constructor such as ARRAY[1, 2].
func indexable(tok Token) bool {
	return tok.Kind == Identifier || tok.Kind == QuotedIdentifier || tok.is(")") || tok.is("]")
}

func inSubscript(stack []bool) bool {
	return len(stack) > 0 && stack[len(stack)-1]
}

func isNumeric(text string) bool {
	text = strings.TrimPrefix(text, "-")
	if text == "" {
		return false
	}
	return isDigit(text[0]) || text[0] == '.'
}

func isListOperator(text string) bool {
	return strings.EqualFold(text, "IN") || strings.EqualFold(text, "NOT IN")
}

// valueList checks whether tokens[from:] starts with a parenthesised list of
// values, e.g. "(1, 2, $3)", and returns the index of the closing paren.
func valueList(tokens []Token, from int) (int, bool) {
	i := skipWhitespace(tokens, from)
	if i >= len(tokens) || !tokens[i].is("(") {
		return 0, false
	}

	for {
		i = skipWhitespace(tokens, i+1)
		if i >= len(tokens) || !tokens[i].IsValue() {
			return 0, false
		}
		i = skipWhitespace(tokens, i+1)
		if i >= len(tokens) {
			return 0, false
		}
		switch {
		case tokens[i].is(")"):
			return i, true
		case !tokens[i].is(","):
			return 0, false
		}
	}
}

func skipWhitespace(tokens []Token, i int) int {
	for i < len(tokens) && tokens[i].Kind == Whitespace {
		i++
	}
	return i
}

func collapseSpace(text string) string {
	if !strings.ContainsAny(text, " \t\n\r\f\v") {
		return text
	}
	return strings.Join(strings.Fields(text), " ")
}
