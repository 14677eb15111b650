// Package handle keeps Go values reachable while R holds references to them.
//
// R cannot store Go pointers: the garbage collector may move or free them
// and cgo rules forbid handing them to C. Instead a Go value is inserted in
// a Table and R receives the integer Handle, typically as the address of
// an external pointer. Handle 0 is reserved so a NULL external pointer is
// never mistaken for a live value.
//
//	t := handle.NewTable()
//	h, err := t.Insert(handle.TypeFunc, fn)
//	v, ok := t.GetTyped(h, handle.TypeFunc)
//	t.Remove(h) // once R has collected its reference
package handle
