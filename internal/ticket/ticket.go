// Package ticket implements the fixed-width lottery ticket encoding and the
// digit matching rules used at settlement.
package ticket

import (
	"errors"
	"fmt"
)

const (
	// DigitCount is the number of digits on a ticket.
	DigitCount = 5
	// MaxDigit is the largest playable digit value.
	MaxDigit = 63
)

var ErrInvalidDigit = errors.New("ticket digit out of range")

// Ticket packs five digits into one integer, one byte per digit,
// most-significant digit first. Only the low 40 bits are used.
type Ticket uint64

// Encode validates and packs the given digits.
func Encode(digits [DigitCount]uint8) (Ticket, error) {
	var t Ticket
	for i, d := range digits {
		if d > MaxDigit {
			return 0, fmt.Errorf("%w: digit %d at position %d exceeds %d", ErrInvalidDigit, d, i, MaxDigit)
		}
		t = t<<8 | Ticket(d)
	}
	return t, nil
}

// Decode unpacks a ticket into its five digit slots.
func Decode(t Ticket) [DigitCount]uint8 {
	var digits [DigitCount]uint8
	for i := 0; i < DigitCount; i++ {
		shift := uint(8 * (DigitCount - 1 - i))
		digits[i] = uint8(t >> shift)
	}
	return digits
}

// MatchCount pairs each digit of a with an unused digit of equal value in the
// reference ticket b. Every reference digit can be consumed at most once, so
// repeats in a never score beyond b's own multiplicity. Settlement always
// passes the winning ticket as b.
func MatchCount(a, b Ticket) uint8 {
	var remaining [256]uint8
	for _, d := range Decode(b) {
		remaining[d]++
	}

	var matches uint8
	for _, d := range Decode(a) {
		if remaining[d] > 0 {
			remaining[d]--
			matches++
		}
	}
	return matches
}
