package queryir

// Query is a capture query. Sealed: only types in this package implement
// it, so compilers can switch exhaustively.
type Query interface {
	queryNode()
}

// Predicate filters captures. Sealed like Query.
type Predicate interface {
	predicateNode()
}

// Select lists captures matching Filter in archive order (by sequence
// number), or newest first when Desc is set.
type Select struct {
	Filter Predicate // nil matches every capture
	Limit  int       // 0 means no limit
	Desc   bool
}

func (Select) queryNode() {}

// Equals matches captures whose Field equals Value. Text fields take a
// string, boolean fields a bool.
type Equals struct {
	Field Field
	Value any
}

func (Equals) predicateNode() {}

// And matches captures satisfying every predicate. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Field names a filterable capture column.
type Field string

const (
	FieldPlanName   Field = "plan_name"
	FieldPlanHash   Field = "plan_hash"
	FieldMode       Field = "mode"
	FieldFinalState Field = "final_state"
	FieldOverrun    Field = "overrun"
)

// Kind is the value type a field compares against.
type Kind int

const (
	KindText Kind = iota
	KindBool
)

func (k Kind) String() string {
	if k == KindBool {
		return "bool"
	}
	return "text"
}

var fieldKinds = map[Field]Kind{
	FieldPlanName:   KindText,
	FieldPlanHash:   KindText,
	FieldMode:       KindText,
	FieldFinalState: KindText,
	FieldOverrun:    KindBool,
}

// Kind reports the field's value type and whether the field exists.
func (f Field) Kind() (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// Where combines preds into one predicate, skipping nils. It returns nil
// when nothing is left and the predicate itself when only one is.
func Where(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}
