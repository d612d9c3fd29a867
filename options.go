package tapejson

import "fmt"

// ParserOption is a parser option.
type ParserOption func(pj *internalParsedJson) error

// WithMaxDepth sets the maximum nesting depth of documents.
// Nesting to exactly n-1 containers succeeds; one deeper fails the parse
// with ErrDepth. The scope stack is allocated to this size up front.
// Default: DefaultMaxDepth.
func WithMaxDepth(n int) ParserOption {
	return func(pj *internalParsedJson) error {
		if n <= 0 {
			return fmt.Errorf("max depth must be positive, got %d", n)
		}
		pj.maxDepth = n
		return nil
	}
}

// WithCapacity preallocates tape and string buffers sized by the same
// estimate that parsing a document of the given number of bytes uses.
// The buffers are not sized for the worst case: a document that needs more
// tape words or string bytes than the estimate grows them while parsing.
func WithCapacity(n int) ParserOption {
	return func(pj *internalParsedJson) error {
		if n < 0 {
			return fmt.Errorf("capacity must not be negative, got %d", n)
		}
		pj.initialize(n)
		return nil
	}
}
