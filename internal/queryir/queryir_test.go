package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhere(t *testing.T) {
	mode := Equals{Field: FieldMode, Value: "mem"}
	overrun := Equals{Field: FieldOverrun, Value: true}

	assert.Nil(t, Where())
	assert.Nil(t, Where(nil, nil))
	assert.Equal(t, mode, Where(nil, mode))
	assert.Equal(t, And{Predicates: []Predicate{mode, overrun}}, Where(mode, nil, overrun))
}

func TestFieldKind(t *testing.T) {
	k, ok := FieldOverrun.Kind()
	require.True(t, ok)
	assert.Equal(t, KindBool, k)
	assert.Equal(t, "bool", k.String())

	k, ok = FieldPlanName.Kind()
	require.True(t, ok)
	assert.Equal(t, "text", k.String())

	_, ok = Field("data").Kind()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr []string
	}{
		{
			name:  "empty select",
			query: Select{},
		},
		{
			name: "pointer select with nested and",
			query: &Select{Filter: And{Predicates: []Predicate{
				Equals{Field: FieldPlanName, Value: "bench"},
				&And{Predicates: []Predicate{&Equals{Field: FieldOverrun, Value: false}}},
			}}, Limit: 3},
		},
		{
			name:    "negative limit",
			query:   Select{Limit: -1},
			wantErr: []string{"limit -1 is negative"},
		},
		{
			name:    "unknown field",
			query:   Select{Filter: Equals{Field: "data", Value: "x"}},
			wantErr: []string{`unknown field "data"`},
		},
		{
			name: "wrong kinds reported together",
			query: Select{Filter: And{Predicates: []Predicate{
				Equals{Field: FieldOverrun, Value: "yes"},
				Equals{Field: FieldMode, Value: 1},
			}}},
			wantErr: []string{
				`field "overrun" wants a bool value, got string`,
				`field "mode" wants a text value, got int`,
			},
		},
		{
			name:    "nil predicate inside and",
			query:   Select{Filter: And{Predicates: []Predicate{nil}}},
			wantErr: []string{"nil predicate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidate_NilQuery(t *testing.T) {
	assert.EqualError(t, Validate((*Select)(nil)), "nil query")
	assert.Error(t, Validate(nil))
}
