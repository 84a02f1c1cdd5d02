package fsvc

// ValueClassifier recognizes one shape of answer value (an age range, a
// currency amount, an enumerated gender) and the kind of bank item that
// collects it. Registered classifiers extend category inference for orphan
// answers and the shape agreement check that guards positional matching.
//
// Implementations must be safe for concurrent use: reconciliation consults
// classifiers from every worker in the pool.
type ValueClassifier interface {
	// Name returns the slot label. It must be unique across all registered
	// classifiers, built-in ones included.
	Name() string

	// MatchValue reports whether the raw value has this shape.
	MatchValue(value string) bool

	// MatchItem reports whether the bank item is the kind of question that
	// collects values of this shape.
	MatchItem(item BankItem) bool

	// Definitive reports whether a value match pins down the value's kind
	// strongly enough to contest a positional assignment.
	Definitive() bool
}
