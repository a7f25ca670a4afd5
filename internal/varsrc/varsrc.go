// Package varsrc resolves logical variable ids to the raw bytes the engine
// samples, and simulates the process variables behind them.
//
// Values are held little-endian, as on the controller the capture format was
// designed for; the engine reverses them into big-endian samples.
package varsrc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Source resolves a variable id to its backing bytes and byte width.
type Source interface {
	Resolve(id uint32) ([]byte, uint8, error)
}

// ErrUnknownVariable is returned by Resolve for ids nobody registered.
var ErrUnknownVariable = errors.New("unknown variable")

// DataType is the storage type of a variable.
type DataType uint8

const (
	U8 DataType = iota
	I8
	U16
	I16
	U32
	I32
	F32
)

var typeNames = [...]string{
	U8:  "u8",
	I8:  "i8",
	U16: "u16",
	I16: "i16",
	U32: "u32",
	I32: "i32",
	F32: "f32",
}

func (t DataType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// Width is the size of the type in bytes.
func (t DataType) Width() uint8 {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	}
	return 0
}

// ParseDataType accepts the names produced by DataType.String.
func ParseDataType(s string) (DataType, error) {
	for i, n := range typeNames {
		if n == strings.ToLower(s) {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// Variable is one simulated process variable.
type Variable struct {
	ID     uint32
	Name   string
	Type   DataType
	Signal Signal

	buf [8]byte
}

// Bytes returns the variable's backing storage. The slice stays valid for
// the life of the variable and reflects every later Set.
func (v *Variable) Bytes() []byte {
	return v.buf[:v.Type.Width()]
}

// Set stores x, rounded and wrapped to the variable's type.
func (v *Variable) Set(x float64) {
	switch v.Type {
	case F32:
		binary.LittleEndian.PutUint32(v.buf[:], math.Float32bits(float32(x)))
		return
	}
	n := uint64(int64(math.Round(x)))
	switch v.Type.Width() {
	case 1:
		v.buf[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(v.buf[:], uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(v.buf[:], uint32(n))
	}
}

// Value decodes the current contents.
func (v *Variable) Value() float64 {
	switch v.Type {
	case U8:
		return float64(v.buf[0])
	case I8:
		return float64(int8(v.buf[0]))
	case U16:
		return float64(binary.LittleEndian.Uint16(v.buf[:]))
	case I16:
		return float64(int16(binary.LittleEndian.Uint16(v.buf[:])))
	case U32:
		return float64(binary.LittleEndian.Uint32(v.buf[:]))
	case I32:
		return float64(int32(binary.LittleEndian.Uint32(v.buf[:])))
	case F32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.buf[:])))
	}
	return 0
}

// Table is an in-memory variable table.
//
// Not safe for concurrent use. The sampler goroutine owns the table: it calls
// Step and then Engine.Service, so values never change mid-sample.
type Table struct {
	byID   map[uint32]*Variable
	byName map[string]*Variable
}

func NewTable() *Table {
	return &Table{
		byID:   make(map[uint32]*Variable),
		byName: make(map[string]*Variable),
	}
}

// Add registers a variable. Names are NFC-normalized and must be unique,
// as must ids.
func (t *Table) Add(id uint32, name string, typ DataType, sig Signal) (*Variable, error) {
	if typ.Width() == 0 {
		return nil, fmt.Errorf("variable %d: invalid type %v", id, typ)
	}
	name = norm.NFC.String(name)
	if _, ok := t.byID[id]; ok {
		return nil, fmt.Errorf("variable %d: duplicate id", id)
	}
	if name != "" {
		if _, ok := t.byName[name]; ok {
			return nil, fmt.Errorf("variable %q: duplicate name", name)
		}
	}

	v := &Variable{ID: id, Name: name, Type: typ, Signal: sig}
	if sig != nil {
		v.Set(sig.Value(0))
	}
	t.byID[id] = v
	if name != "" {
		t.byName[name] = v
	}
	return v, nil
}

// Resolve implements Source.
func (t *Table) Resolve(id uint32) ([]byte, uint8, error) {
	v, ok := t.byID[id]
	if !ok {
		return nil, 0, fmt.Errorf("variable %d: %w", id, ErrUnknownVariable)
	}
	return v.Bytes(), v.Type.Width(), nil
}

// Get returns the variable with the given id.
func (t *Table) Get(id uint32) (*Variable, bool) {
	v, ok := t.byID[id]
	return v, ok
}

// Lookup returns the variable with the given name.
func (t *Table) Lookup(name string) (*Variable, bool) {
	v, ok := t.byName[norm.NFC.String(name)]
	return v, ok
}

// Variables returns all variables ordered by id.
func (t *Table) Variables() []*Variable {
	out := make([]*Variable, 0, len(t.byID))
	for _, v := range t.byID {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Step sets every variable that has a signal to the signal's value at tick.
func (t *Table) Step(tick uint64) {
	for _, v := range t.byID {
		if v.Signal != nil {
			v.Set(v.Signal.Value(tick))
		}
	}
}
