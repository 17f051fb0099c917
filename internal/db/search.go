package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "vector"
	Vector       []float32
	K            int
	Filter       TagFilter
	ReturnFields []string
}

// TagFilter is a TAG pre-filter applied before KNN. Conditions are ANDed;
// MustNot conditions are negated.
type TagFilter struct {
	Must    []TagCondition
	MustNot []TagCondition
}

// TagCondition matches a TAG field against any of Values.
type TagCondition struct {
	Field  string
	Values []string
}

// IsEmpty reports whether the filter has no conditions.
func (f TagFilter) IsEmpty() bool {
	return len(f.Must) == 0 && len(f.MustNot) == 0
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit from a search. Score is a similarity in [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
