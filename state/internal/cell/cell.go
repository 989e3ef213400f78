// Package cell implements the Value Cell described in spec section 3:
// a uniform carrier for "no value" (void-typed state), "one value", or
// "many values", so the engine above it never special-cases the void
// case.
//
// This mirrors how go-sup's boundTask/ErrChild types are always used
// through a pointer and never nil-checked for a "no payload" variant --
// here we make that explicit by giving the zero-value-or-many case one
// type instead of scattering nil checks through state.Shared.
package cell

// Cell holds zero, one, or many values of T. The zero Cell is empty.
// A void-typed SharedState is simply a Cell[struct{}] that Append is
// never called on.
type Cell[T any] struct {
	values []T
}

// Append adds v to the cell. Safe to call multiple times; a caller
// that only ever wants "one value" semantics should call it once.
func (c *Cell[T]) Append(v T) {
	c.values = append(c.values, v)
}

// AppendAll adds vs to the cell in order.
func (c *Cell[T]) AppendAll(vs []T) {
	c.values = append(c.values, vs...)
}

// Len reports how many values are held.
func (c *Cell[T]) Len() int {
	return len(c.values)
}

// Values returns the held values, in append order. The returned slice
// is owned by the caller; Cell retains its own backing array.
func (c *Cell[T]) Values() []T {
	out := make([]T, len(c.values))
	copy(out, c.values)
	return out
}

// Last returns the most recently appended value, and whether the cell
// held any value at all.
func (c *Cell[T]) Last() (v T, ok bool) {
	if len(c.values) == 0 {
		return v, false
	}
	return c.values[len(c.values)-1], true
}
