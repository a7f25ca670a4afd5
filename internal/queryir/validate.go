package queryir

import (
	"errors"
	"fmt"
)

// Validate checks that every predicate names a known field with a value of
// the field's kind. It reports all problems, not just the first.
func Validate(q Query) error {
	var errs []error
	switch query := q.(type) {
	case Select:
		errs = validateSelect(query, errs)
	case *Select:
		if query == nil {
			return errors.New("nil query")
		}
		errs = validateSelect(*query, errs)
	default:
		return fmt.Errorf("unsupported query type %T", q)
	}
	return errors.Join(errs...)
}

func validateSelect(q Select, errs []error) []error {
	if q.Limit < 0 {
		errs = append(errs, fmt.Errorf("limit %d is negative", q.Limit))
	}
	if q.Filter != nil {
		errs = validatePredicate(q.Filter, errs)
	}
	return errs
}

func validatePredicate(p Predicate, errs []error) []error {
	switch pred := p.(type) {
	case Equals:
		return validateEquals(pred, errs)
	case *Equals:
		return validateEquals(*pred, errs)
	case And:
		for _, sub := range pred.Predicates {
			errs = validatePredicate(sub, errs)
		}
		return errs
	case *And:
		return validatePredicate(*pred, errs)
	case nil:
		return append(errs, errors.New("nil predicate"))
	}
	return append(errs, fmt.Errorf("unsupported predicate type %T", p))
}

func validateEquals(eq Equals, errs []error) []error {
	kind, ok := eq.Field.Kind()
	if !ok {
		return append(errs, fmt.Errorf("unknown field %q", eq.Field))
	}
	switch eq.Value.(type) {
	case string:
		if kind == KindText {
			return errs
		}
	case bool:
		if kind == KindBool {
			return errs
		}
	}
	return append(errs, fmt.Errorf("field %q wants a %s value, got %T", eq.Field, kind, eq.Value))
}
