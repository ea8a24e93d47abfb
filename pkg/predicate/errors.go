package predicate

import "errors"

// ErrPredicateInvalid is returned by Registry.Register when a predicate
// spec fails validation (malformed matcher, start_block past end_block,
// missing action fields). The registry is left unchanged.
var ErrPredicateInvalid = errors.New("predicate: invalid predicate")

// ErrUnknownMatcherFamily is returned by spec parsing when a predicate spec
// names zero or more than one matcher-family key.
var ErrUnknownMatcherFamily = errors.New("predicate: spec must set exactly one matcher family")
