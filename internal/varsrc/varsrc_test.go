package varsrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datalogger/internal/ir"
)

func TestDataType_Width(t *testing.T) {
	tests := []struct {
		typ  DataType
		want uint8
	}{
		{U8, 1}, {I8, 1}, {U16, 2}, {I16, 2}, {U32, 4}, {I32, 4}, {F32, 4},
		{DataType(42), 0},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Width())
		})
	}
}

func TestParseDataType(t *testing.T) {
	typ, err := ParseDataType("I16")
	require.NoError(t, err)
	assert.Equal(t, I16, typ)

	_, err = ParseDataType("u64")
	assert.Error(t, err)
}

func TestVariable_SetStoresLittleEndian(t *testing.T) {
	v := &Variable{Type: U16}
	v.Set(0x1234)
	assert.Equal(t, []byte{0x34, 0x12}, v.Bytes())
	assert.Equal(t, float64(0x1234), v.Value())
}

func TestVariable_SetWraps(t *testing.T) {
	u := &Variable{Type: U8}
	u.Set(257)
	assert.Equal(t, []byte{0x01}, u.Bytes())

	i := &Variable{Type: I8}
	i.Set(-1)
	assert.Equal(t, []byte{0xFF}, i.Bytes())
	assert.Equal(t, float64(-1), i.Value())
}

func TestVariable_F32(t *testing.T) {
	v := &Variable{Type: F32}
	v.Set(1.5)
	assert.Equal(t, []byte{0x00, 0x00, 0xC0, 0x3F}, v.Bytes())
	assert.Equal(t, 1.5, v.Value())
}

func TestTable_ResolveReturnsLiveBytes(t *testing.T) {
	tbl := NewTable()
	v, err := tbl.Add(7, "speed", U16, nil)
	require.NoError(t, err)

	b, width, err := tbl.Resolve(7)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), width)

	v.Set(0xBEEF)
	assert.Equal(t, []byte{0xEF, 0xBE}, b, "resolved bytes must alias the variable")
}

func TestTable_ResolveUnknown(t *testing.T) {
	_, _, err := NewTable().Resolve(1)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestTable_AddRejectsDuplicates(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add(1, "a", U8, nil)
	require.NoError(t, err)

	_, err = tbl.Add(1, "b", U8, nil)
	assert.Error(t, err)

	_, err = tbl.Add(2, "a", U8, nil)
	assert.Error(t, err)
}

func TestTable_LookupNormalizesNames(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add(1, "cafe\u0301", U8, nil)
	require.NoError(t, err)

	v, ok := tbl.Lookup("caf\u00e9")
	require.True(t, ok)
	assert.Equal(t, uint32(1), v.ID)
}

func TestTable_StepDrivesSignals(t *testing.T) {
	tbl := NewTable()
	cnt, err := tbl.Add(1, "count", U8, Counter{Start: 10, Step: 1})
	require.NoError(t, err)
	fixed, err := tbl.Add(2, "fixed", U8, nil)
	require.NoError(t, err)
	fixed.Set(99)

	assert.Equal(t, float64(10), cnt.Value(), "Add applies the tick 0 value")

	tbl.Step(5)
	assert.Equal(t, float64(15), cnt.Value())
	assert.Equal(t, float64(99), fixed.Value())
}

func TestTable_VariablesOrderedByID(t *testing.T) {
	tbl := NewTable()
	for _, id := range []uint32{3, 1, 2} {
		_, err := tbl.Add(id, "", U8, nil)
		require.NoError(t, err)
	}
	var ids []uint32
	for _, v := range tbl.Variables() {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []uint32{1, 2, 3}, ids)
}

func TestSignals(t *testing.T) {
	assert.Equal(t, 4.0, Constant{V: 4}.Value(100))
	assert.Equal(t, 7.0, Counter{Start: 1, Step: 2}.Value(3))
	assert.InDelta(t, 10.0, Sine{Amplitude: 10, Period: 4}.Value(1), 1e-9)
	assert.Equal(t, 5.0, Sine{Offset: 5}.Value(3))

	sq := Square{Low: 0, High: 1, Period: 4}
	assert.Equal(t, []float64{0, 0, 1, 1, 0}, []float64{
		sq.Value(0), sq.Value(1), sq.Value(2), sq.Value(3), sq.Value(4),
	})
}

func TestBuildSignal(t *testing.T) {
	sig, err := BuildSignal(nil)
	require.NoError(t, err)
	assert.Nil(t, sig)

	sig, err = BuildSignal(&ir.SignalSpec{Kind: "counter", Start: 3, Step: -1})
	require.NoError(t, err)
	assert.Equal(t, Counter{Start: 3, Step: -1}, sig)

	sig, err = BuildSignal(&ir.SignalSpec{Kind: "square", Low: 1, High: 2, Period: 10})
	require.NoError(t, err)
	assert.Equal(t, Square{Low: 1, High: 2, Period: 10}, sig)

	_, err = BuildSignal(&ir.SignalSpec{Kind: "noise"})
	assert.Error(t, err)
}

func TestFromPlan(t *testing.T) {
	plan := &ir.CapturePlan{
		Variables: []ir.VariableSpec{
			{ID: 4, Name: "temp", Type: "i16", Signal: &ir.SignalSpec{Kind: "constant", Start: -40}},
			{ID: 9, Name: "flag", Type: "u8"},
		},
	}
	tbl, err := FromPlan(plan)
	require.NoError(t, err)

	temp, ok := tbl.Lookup("temp")
	require.True(t, ok)
	assert.Equal(t, []byte{0xD8, 0xFF}, temp.Bytes())

	_, width, err := tbl.Resolve(9)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), width)

	plan.Variables[1].Type = "bool"
	_, err = FromPlan(plan)
	assert.Error(t, err)
}
