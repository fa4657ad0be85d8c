package normalizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// multi-byte operators, longest first so that prefix matching picks the longest one.
var operators = []string{
	"->>", "#>>", "!~*",
	"::", "<=", ">=", "<>", "!=", "||", "->", "#>", "#-", "@>", "<@", "~*", "!~", ":=", "<<", ">>", "&&",
	"=", "<", ">", "+", "-", "*", "/", "%", "|", "&", "^", "~", "#",
}

// lexer is a single-pass scanner over the SQL text. Every call to next
// consumes at least one byte, so the token stream always covers the input.
type lexer struct {
	src  string
	pos  int
	toks []Token

	lastSig    int // index of the last non-whitespace token, -1 if none
	sawKeyword bool
}

// Tokenize splits sql into a lossless token sequence. Concatenating the Text
// of every returned token yields sql again.
//
// Tokenize never fails outright: bytes it cannot classify become Unknown
// tokens. When the input contains no keyword at all the tokens are still
// returned together with ErrNoStatement.
//
// Example:
//
//	toks, _ := Tokenize("SELECT * FROM users WHERE id = $1")
//	// Keyword "SELECT", Whitespace " ", Operator "*", ..., BindParameter "$1"
func Tokenize(sql string) ([]Token, error) {
	l := &lexer{
		src:     sql,
		toks:    make([]Token, 0, len(sql)/3+1),
		lastSig: -1,
	}

	for l.pos < len(l.src) {
		start := l.pos
		kind := l.next()
		l.emit(kind, start)
	}

	if !l.sawKeyword {
		return l.toks, ErrNoStatement
	}
	return l.toks, nil
}

func (l *lexer) emit(kind Kind, start int) {
	if kind == Unknown && len(l.toks) > 0 {
		last := &l.toks[len(l.toks)-1]
		if last.Kind == Unknown && last.Span.End == start {
			last.Span.End = l.pos
			last.Text = l.src[last.Span.Start:l.pos]
			return
		}
	}

	l.toks = append(l.toks, Token{
		Kind: kind,
		Text: l.src[start:l.pos],
		Span: Span{Start: start, End: l.pos},
	})

	switch kind {
	case Whitespace:
	case Keyword:
		l.sawKeyword = true
		l.lastSig = len(l.toks) - 1
	default:
		l.lastSig = len(l.toks) - 1
	}
}

func (l *lexer) peek(offset int) byte {
	if i := l.pos + offset; i < len(l.src) {
		return l.src[i]
	}
	return 0
}

func (l *lexer) next() Kind {
	c := l.src[l.pos]

	switch {
	case isSpace(c):
		l.skipSpace()
		return Whitespace
	case c == '-' && l.peek(1) == '-':
		l.lineComment()
		return Whitespace
	case c == '#' && l.peek(1) == ' ':
		// MySQL line comment; "#>" and "#-" are postgres operators
		l.lineComment()
		return Whitespace
	case c == '/' && l.peek(1) == '*':
		l.blockComment()
		return Whitespace
	case c == '\'':
		l.quoted('\'', true)
		return Literal
	case c == '"' || c == '`':
		l.quoted(c, false)
		return QuotedIdentifier
	case isDigit(c), c == '.' && isDigit(l.peek(1)):
		return l.number()
	case c == '-' && (isDigit(l.peek(1)) || l.peek(1) == '.' && isDigit(l.peek(2))) && l.signAllowed():
		l.pos++
		return l.number()
	case c == '$':
		return l.dollar()
	case c == '?':
		l.pos++
		return BindParameter
	case c == ':':
		return l.colon()
	case c == '@':
		if r, _ := utf8.DecodeRuneInString(l.src[l.pos+1:]); isIdentStart(r) {
			l.pos++
			l.word()
			return BindParameter
		}
		return l.operator()
	case strings.IndexByte("(),;[].", c) >= 0:
		l.pos++
		return Punctuation
	case strings.IndexByte("=<>+-*/%|&^~!#", c) >= 0:
		return l.operator()
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	switch {
	case r == utf8.RuneError && size <= 1:
		l.pos++
		return Unknown
	case isIdentStart(r):
		return l.identifier()
	case unicode.IsSpace(r):
		l.skipSpace()
		return Whitespace
	}
	l.pos += size
	return Unknown
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		if isSpace(l.src[l.pos]) {
			l.pos++
			continue
		}
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if r == utf8.RuneError || !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) lineComment() {
	if i := strings.IndexByte(l.src[l.pos:], '\n'); i >= 0 {
		l.pos += i + 1
		return
	}
	l.pos = len(l.src)
}

func (l *lexer) blockComment() {
	if i := strings.Index(l.src[l.pos+2:], "*/"); i >= 0 {
		l.pos += i + 4
		return
	}
	l.pos = len(l.src)
}

// quoted consumes a quoted run starting at the opening quote. A doubled quote
// is an escaped quote; backslash escapes apply to string literals only. An
// unterminated run extends to the end of the input.
func (l *lexer) quoted(quote byte, backslash bool) {
	l.pos++
	for l.pos < len(l.src) {
		switch c := l.src[l.pos]; {
		case backslash && c == '\\':
			l.pos += 2
		case c == quote && l.peek(1) == quote:
			l.pos += 2
		case c == quote:
			l.pos++
			return
		default:
			l.pos++
		}
	}
	l.pos = len(l.src)
}

// number scans integers, decimals, exponents and hex literals, with '_'
// allowed between digits (1_000_000). A plain digit run that continues into
// a word is an identifier, as MySQL allows "2fa_codes". Any other number
// running into word characters, or ending in a bare exponent such as
// "1.5e", is Unknown.
func (l *lexer) number() Kind {
	plain := true
	if l.peek(0) == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') && isHex(l.peek(2)) {
		l.pos += 2
		l.digits(isHex)
		plain = false
	} else {
		if l.digits(isDigit) {
			plain = false
		}
		if l.peek(0) == '.' && isDigit(l.peek(1)) {
			l.pos++
			l.digits(isDigit)
			plain = false
		} else if l.peek(0) == '.' && (!isIdentByte(l.peek(1)) || l.peek(1) == 'e' || l.peek(1) == 'E') {
			l.pos++
			plain = false
		}
		if e := l.peek(0); e == 'e' || e == 'E' {
			sign := l.peek(1) == '+' || l.peek(1) == '-'
			switch {
			case isDigit(l.peek(1)):
				l.pos++
				l.digits(isDigit)
				plain = false
			case sign && isDigit(l.peek(2)):
				l.pos += 2
				l.digits(isDigit)
				plain = false
			case sign:
				l.pos += 2
				return Unknown
			default:
				if r, _ := utf8.DecodeRuneInString(l.src[l.pos+1:]); !isIdentPart(r) {
					l.pos++
					return Unknown
				}
			}
		}
	}

	if r, _ := utf8.DecodeRuneInString(l.src[l.pos:]); isIdentPart(r) {
		l.word()
		if plain {
			return Identifier
		}
		return Unknown
	}
	return Literal
}

// digits consumes a run of bytes accepted by is, with single underscores
// between them. It reports whether an underscore was consumed.
func (l *lexer) digits(is func(byte) bool) bool {
	sep := false
	for l.pos < len(l.src) {
		switch c := l.peek(0); {
		case is(c):
			l.pos++
		case c == '_' && l.pos > 0 && is(l.src[l.pos-1]) && is(l.peek(1)):
			l.pos += 2
			sep = true
		default:
			return sep
		}
	}
	return sep
}

// signAllowed reports whether a '-' at the current position can start a
// negative number rather than being a binary minus.
func (l *lexer) signAllowed() bool {
	if l.lastSig < 0 {
		return true
	}
	prev := l.toks[l.lastSig]
	switch prev.Kind {
	case Keyword, Operator:
		return true
	case Punctuation:
		return prev.Text != ")" && prev.Text != "]"
	}
	return false
}

// dollar handles positional binds ($1) and dollar-quoted strings ($$..$$, $tag$..$tag$).
func (l *lexer) dollar() Kind {
	if isDigit(l.peek(1)) {
		l.pos++
		l.digits(isDigit)
		return BindParameter
	}

	end := l.pos + 1
	for end < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[end:])
		if !isIdentPart(r) || r == '$' {
			break
		}
		end += size
	}
	if end >= len(l.src) || l.src[end] != '$' {
		l.pos++
		return Unknown
	}

	tag := l.src[l.pos : end+1]
	l.pos = end + 1
	if i := strings.Index(l.src[l.pos:], tag); i >= 0 {
		l.pos += i + len(tag)
	} else {
		l.pos = len(l.src)
	}
	return Literal
}

func (l *lexer) colon() Kind {
	switch next := l.peek(1); {
	case next == ':' || next == '=':
		l.pos += 2
		return Operator
	case isIdentByte(next) && !isDigit(next) || next >= utf8.RuneSelf:
		if r, _ := utf8.DecodeRuneInString(l.src[l.pos+1:]); isIdentStart(r) {
			l.pos++
			l.word()
			return BindParameter
		}
	}
	// slice separator inside array subscripts: items[1:2]
	l.pos++
	return Punctuation
}

func (l *lexer) operator() Kind {
	rest := l.src[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return Operator
		}
	}
	l.pos++
	return Unknown
}

func (l *lexer) word() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			return
		}
		l.pos += size
	}
}

// identifier scans a word and classifies it as keyword, literal keyword,
// compound operator or plain identifier.
func (l *lexer) identifier() Kind {
	start := l.pos
	l.word()
	w := l.src[start:l.pos]

	// typed string constants: E'..', B'..', X'..', N'..'
	if len(w) == 1 && l.peek(0) == '\'' && strings.ContainsAny(w, "EeBbXxNn") {
		l.quoted('\'', true)
		return Literal
	}

	upper := strings.ToUpper(w)
	if _, ok := literalKeywords[upper]; ok {
		return Literal
	}

	switch upper {
	case "IS":
		l.extendWith("NOT")
		return Operator
	case "IN":
		return Operator
	case "NOT":
		if l.extendWith("IN") {
			return Operator
		}
		return Keyword
	}

	if _, ok := keywords[upper]; ok {
		return Keyword
	}
	return Identifier
}

// extendWith advances past whitespace and the given word when that word
// follows immediately; otherwise the position is left untouched.
func (l *lexer) extendWith(word string) bool {
	i := l.pos
	for i < len(l.src) && isSpace(l.src[i]) {
		i++
	}
	if i == l.pos || len(l.src)-i < len(word) || !strings.EqualFold(l.src[i:i+len(word)], word) {
		return false
	}
	end := i + len(word)
	if r, _ := utf8.DecodeRuneInString(l.src[end:]); end < len(l.src) && isIdentPart(r) {
		return false
	}
	l.pos = end
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isHex(c byte) bool {
	return isDigit(c) || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
