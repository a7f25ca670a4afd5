package engine

import "math/bits"

// MaxChannels is the size of the channel table.
const MaxChannels = 8

// ChannelSet is a set of channel slots, one bit per slot. Slot n (1-based)
// occupies bit n-1. Out-of-range slots are ignored by every method.
type ChannelSet uint8

// validSlot reports whether slot addresses the channel table.
func validSlot(slot int) bool {
	return slot >= 1 && slot <= MaxChannels
}

func (s ChannelSet) Has(slot int) bool {
	if !validSlot(slot) {
		return false
	}
	return s&(1<<(slot-1)) != 0
}

func (s ChannelSet) With(slot int) ChannelSet {
	if !validSlot(slot) {
		return s
	}
	return s | 1<<(slot-1)
}

func (s ChannelSet) Without(slot int) ChannelSet {
	if !validSlot(slot) {
		return s
	}
	return s &^ (1 << (slot - 1))
}

// Len returns the number of slots in the set.
func (s ChannelSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

func (s ChannelSet) Empty() bool {
	return s == 0
}

// SubsetOf reports whether every slot of s is also in o.
func (s ChannelSet) SubsetOf(o ChannelSet) bool {
	return s&^o == 0
}

// lowest returns the smallest member. s must not be empty.
func (s ChannelSet) lowest() int {
	return bits.TrailingZeros8(uint8(s)) + 1
}

// Slots returns the members in ascending order.
func (s ChannelSet) Slots() []int {
	out := make([]int, 0, s.Len())
	for rest := uint8(s); rest != 0; rest &= rest - 1 {
		out = append(out, bits.TrailingZeros8(rest)+1)
	}
	return out
}

// Nth returns the n-th member (0-based) in ascending order.
func (s ChannelSet) Nth(n int) (int, bool) {
	for rest := uint8(s); rest != 0; rest &= rest - 1 {
		if n == 0 {
			return bits.TrailingZeros8(rest) + 1, true
		}
		n--
	}
	return 0, false
}
