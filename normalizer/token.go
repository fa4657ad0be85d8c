package normalizer

// Kind classifies a lexed token.
type Kind uint8

const (
	Unknown Kind = iota
	Keyword
	Identifier
	QuotedIdentifier
	Literal
	BindParameter
	Punctuation
	Operator
	Whitespace
)

var kindStrings = [...]string{
	Unknown:          "Unknown",
	Keyword:          "Keyword",
	Identifier:       "Identifier",
	QuotedIdentifier: "QuotedIdentifier",
	Literal:          "Literal",
	BindParameter:    "BindParameter",
	Punctuation:      "Punctuation",
	Operator:         "Operator",
	Whitespace:       "Whitespace",
}

func (k Kind) String() string {
	if int(k) < len(kindStrings) {
		return kindStrings[k]
	}
	return "<invalid>"
}

// Span is a half-open byte range [Start, End) into the original SQL text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Token is a single lexeme. Text is always sql[Span.Start:Span.End].
type Token struct {
	Kind Kind
	Text string
	Span Span
}

// IsValue reports whether the token carries a value that must be redacted.
func (t Token) IsValue() bool {
	return t.Kind == Literal || t.Kind == BindParameter
}

// is reports whether t is punctuation or an operator with exactly the given text.
func (t Token) is(text string) bool {
	return (t.Kind == Punctuation || t.Kind == Operator) && t.Text == text
}

// keywords recognised by the tokenizer. Anything else word-shaped is an identifier.
// NULL, TRUE and FALSE are literals; IS and IN are operators.
var keywords = map[string]struct{}{
	"ALL": {}, "ALTER": {}, "AND": {}, "ANY": {}, "ARRAY": {}, "AS": {}, "ASC": {},
	"BEGIN": {}, "BETWEEN": {}, "BY": {}, "CASE": {}, "CAST": {}, "COMMIT": {},
	"CONFLICT": {}, "CREATE": {}, "CROSS": {}, "DEFAULT": {}, "DELETE": {}, "DESC": {},
	"DISTINCT": {}, "DO": {}, "DROP": {}, "ELSE": {}, "END": {}, "EXCEPT": {},
	"EXISTS": {}, "EXPLAIN": {}, "FETCH": {}, "FOR": {}, "FROM": {}, "FULL": {},
	"GRANT": {}, "GROUP": {}, "HAVING": {}, "IGNORE": {}, "ILIKE": {}, "INNER": {},
	"INSERT": {}, "INTERSECT": {}, "INTO": {}, "JOIN": {}, "LATERAL": {}, "LEFT": {},
	"LIKE": {}, "LIMIT": {}, "LOW_PRIORITY": {}, "NATURAL": {}, "NOT": {}, "NOTHING": {},
	"OFFSET": {}, "ON": {}, "ONLY": {}, "OR": {}, "ORDER": {}, "OUTER": {}, "OVER": {},
	"PARTITION": {}, "REPLACE": {}, "RETURNING": {}, "REVOKE": {}, "RIGHT": {},
	"ROLLBACK": {}, "SAVEPOINT": {}, "SELECT": {}, "SET": {}, "SHOW": {}, "SOME": {},
	"TABLE": {}, "THEN": {}, "TRUNCATE": {}, "UNION": {}, "UPDATE": {}, "USING": {},
	"VALUES": {}, "WHEN": {}, "WHERE": {}, "WINDOW": {}, "WITH": {},
}

var literalKeywords = map[string]struct{}{
	"NULL": {}, "TRUE": {}, "FALSE": {},
}
