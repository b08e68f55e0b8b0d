// Package wsutf8 validates UTF-8 text incrementally, a byte or a buffer at a
// time, so a WebSocket text message can be validated as its fragments arrive
// instead of only once the whole message is reassembled. The standard
// library's utf8.Valid only answers the one-shot question; it has no way to
// say "valid so far, but more bytes are needed to finish the current rune."
package wsutf8

// Validator is a streaming UTF-8 validator implementing Bjoern Hoehrmann's
// byte-oriented DFA (https://bjoern.hoehrmann.de/utf-8/decoder/dfa/). Each
// byte moves the state forward; the zero Validator is ready to use.
type Validator struct {
	state uint8
}

const (
	accept uint8 = 0
	reject uint8 = 1
)

// utf8dfaTypes maps each of the 256 possible byte values to an input
// character class (0-11), per Hoehrmann's table.
var utf8dfaTypes = [256]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	10, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 4, 3, 3, 11, 6, 6, 6, 5, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
}

// utf8dfaStates maps (state index, char class) to the next state index, 12
// entries per state (one per class). State 0 is accept, state 1 is reject;
// the remaining 7 states track how many continuation bytes are still
// expected and which leading-byte range started the sequence.
var utf8dfaStates = [9][12]uint8{
	{0, 1, 2, 3, 5, 8, 7, 1, 1, 1, 4, 6},
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	{1, 0, 1, 1, 1, 1, 1, 0, 1, 0, 1, 1},
	{1, 2, 1, 1, 1, 1, 1, 2, 1, 2, 1, 1},
	{1, 1, 1, 1, 1, 1, 1, 2, 1, 1, 1, 1},
	{1, 2, 1, 1, 1, 1, 1, 1, 1, 2, 1, 1},
	{1, 1, 1, 1, 1, 1, 1, 3, 1, 3, 1, 1},
	{1, 3, 1, 1, 1, 1, 1, 3, 1, 3, 1, 1},
	{1, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
}

// next advances the DFA by one byte and returns the new state.
func next(state uint8, b byte) uint8 {
	class := utf8dfaTypes[b]
	return utf8dfaStates[state][class]
}

// Consume feeds data through the validator and reports whether everything
// seen so far (across this call and all previous calls) is a valid prefix of
// a UTF-8 string. A false return is permanent: the validator has rejected
// and every subsequent Consume/Complete call will also report failure.
func (v *Validator) Consume(data []byte) bool {
	if v.state == reject {
		return false
	}
	state := v.state
	for _, b := range data {
		state = next(state, b)
		if state == reject {
			v.state = reject
			return false
		}
	}
	v.state = state
	return true
}

// Complete reports whether the validator is in the accept state, i.e. no
// partially-consumed multi-byte sequence is left dangling. Call this once
// after all fragments of a message have been fed through Consume.
func (v *Validator) Complete() bool {
	return v.state == accept
}

// Reset returns the validator to its initial state, for reuse across
// messages.
func (v *Validator) Reset() {
	v.state = accept
}

// Valid is a one-shot convenience wrapper equivalent to constructing a
// Validator, calling Consume once, and checking Complete.
func Valid(data []byte) bool {
	var v Validator
	return v.Consume(data) && v.Complete()
}
