// Package prefix encodes typed values as tagged key segments of the single-table
// convention, e.g. "item#<sourceId>#<itemId>" or "source#<sourceId>".
package prefix

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingPrefix is returned when a text does not start with the expected tag
	ErrMissingPrefix = errors.New("missing prefix")

	// ErrParseFailure is returned when the stripped remainder is not a valid value
	ErrParseFailure = errors.New("failed to parse value")
)

// DecodeError describes a failed decode. It matches ErrMissingPrefix or
// ErrParseFailure with errors.Is and unwraps to the underlying parse error.
type DecodeError struct {
	Prefix string
	Input  string
	Kind   error
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %q with prefix %q: %s: %s", e.Input, e.Prefix, e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %q with prefix %q: %s", e.Input, e.Prefix, e.Kind)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Kind converts one kind of value to and from its canonical text form
type Kind[T any] interface {
	Format(v T) string
	Parse(s string) (T, error)
}

// String is the identity Kind for plain string segments
var String Kind[string] = stringKind{}

type stringKind struct{}

func (stringKind) Format(v string) string { return v }

func (stringKind) Parse(s string) (string, error) { return s, nil }

// Enum builds a Kind for an enum type from its explicit parse function
func Enum[T fmt.Stringer](parse func(string) (T, error)) Kind[T] {
	return enumKind[T]{parse: parse}
}

type enumKind[T fmt.Stringer] struct {
	parse func(string) (T, error)
}

func (k enumKind[T]) Format(v T) string { return v.String() }

func (k enumKind[T]) Parse(s string) (T, error) { return k.parse(s) }

// Codec tags values of T with a fixed prefix
type Codec[T any] struct {
	prefix string
	kind   Kind[T]
}

// New creates a Codec for a (prefix, kind) pair
func New[T any](prefix string, kind Kind[T]) Codec[T] {
	return Codec[T]{prefix: prefix, kind: kind}
}

// Prefix returns the tag this codec writes and expects
func (c Codec[T]) Prefix() string {
	return c.prefix
}

// Encode returns prefix + textual(v)
func (c Codec[T]) Encode(v T) string {
	return c.prefix + c.kind.Format(v)
}

// Decode strips the prefix and parses the remainder
func (c Codec[T]) Decode(text string) (T, error) {
	var zero T

	rest, ok := strings.CutPrefix(text, c.prefix)
	if !ok {
		return zero, &DecodeError{Prefix: c.prefix, Input: text, Kind: ErrMissingPrefix}
	}

	v, err := c.kind.Parse(rest)
	if err != nil {
		return zero, &DecodeError{Prefix: c.prefix, Input: text, Kind: ErrParseFailure, Err: err}
	}

	return v, nil
}

// EncodeOptional encodes a present value; an absent value stays absent
func (c Codec[T]) EncodeOptional(v *T) *string {
	if v == nil {
		return nil
	}
	s := c.Encode(*v)
	return &s
}

// DecodeOptional decodes a present text; an absent text stays absent
func (c Codec[T]) DecodeOptional(text *string) (*T, error) {
	if text == nil {
		return nil, nil
	}
	v, err := c.Decode(*text)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
