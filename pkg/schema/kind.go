package schema

//go:generate go tool stringer -type=Kind -trimprefix=Kind

// Kind is the element type of an attribute.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInteger
	KindText
)
