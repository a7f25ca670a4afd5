// Package queryir defines the filters used to select archived captures.
//
// A query is a small tree of predicates over the summary columns of the
// capture archive. Keeping it separate from SQL lets the CLI build filters
// from flags and lets querysql own every detail of the generated SQL: column
// projection, parameter binding and the archive ordering.
//
// Example:
//
//	q := queryir.Select{
//		Filter: queryir.Where(
//			queryir.Equals{Field: queryir.FieldMode, Value: "mem"},
//			queryir.Equals{Field: queryir.FieldOverrun, Value: true},
//		),
//		Limit: 10,
//	}
//
// selects the first ten mem-mode captures that overran.
package queryir
