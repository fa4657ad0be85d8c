package normalizer

import "errors"

// Errors describing why a statement could not be normalized. They reach the
// Reporter only; callers of Normalize see a Failed outcome.
var (
	// ErrNoStatement is returned by Tokenize when the input has no keyword at all.
	ErrNoStatement = errors.New("no statement structure found")

	// ErrUnrecognizedInput means the input has bytes the tokenizer could not
	// classify, so redaction cannot be guaranteed.
	ErrUnrecognizedInput = errors.New("unrecognized input")

	// ErrNoVerb means no SELECT, INSERT, UPDATE or DELETE was found.
	ErrNoVerb = errors.New("no statement verb found")

	// ErrNoTable means a verb was found without a table.
	ErrNoTable = errors.New("no table found")
)
