package relation

import (
	"context"
	"fmt"
	"slices"
)

// CurryFunc executes a curried operation once it is fully applied.
type CurryFunc func(ctx context.Context, args []any) (*Loaded, error)

// Curried is a relation operation with explicit partial application:
// applying fewer arguments than the operation takes returns a new
// Curried capturing them, applying the last one executes it. Values are
// immutable, so a partially applied operation can be bound repeatedly
// with different remainders.
type Curried struct {
	name  string
	arity int
	bound []any
	fn    CurryFunc
}

// NewCurried wraps fn as a curried operation taking arity arguments.
func NewCurried(name string, arity int, fn CurryFunc) *Curried {
	return &Curried{name: name, arity: max(arity, 0), fn: fn}
}

// Name returns the operation name.
func (c *Curried) Name() string { return c.name }

// Arity returns the total number of arguments the operation takes.
func (c *Curried) Arity() int { return c.arity }

// Remaining returns how many arguments are still unbound.
func (c *Curried) Remaining() int { return c.arity - len(c.bound) }

// Saturated reports whether every argument is bound.
func (c *Curried) Saturated() bool { return c.Remaining() <= 0 }

// Bound returns a copy of the arguments bound so far.
func (c *Curried) Bound() []any { return slices.Clone(c.bound) }

// Bind attaches more arguments without executing, failing when given
// more than remain unbound.
func (c *Curried) Bind(args ...any) (*Curried, error) {
	if len(args) > c.Remaining() {
		return nil, fmt.Errorf(
			"operation `%s` takes %d argument(s), got %d",
			c.name, c.arity, len(c.bound)+len(args),
		)
	}
	bound := make([]any, 0, len(c.bound)+len(args))
	bound = append(bound, c.bound...)
	bound = append(bound, args...)
	return &Curried{name: c.name, arity: c.arity, bound: bound, fn: c.fn}, nil
}

// Call applies args: while the operation stays unsaturated it returns a
// new *Curried awaiting the rest; once saturated it executes and returns
// the *Loaded result.
func (c *Curried) Call(ctx context.Context, args ...any) (any, error) {
	next, err := c.Bind(args...)
	if err != nil {
		return nil, err
	}
	if !next.Saturated() {
		return next, nil
	}
	return next.fn(ctx, next.bound)
}

// Load is Call for callers that expect saturation, failing when
// arguments are still missing.
func (c *Curried) Load(ctx context.Context, args ...any) (*Loaded, error) {
	result, err := c.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	loaded, ok := result.(*Loaded)
	if !ok {
		return nil, fmt.Errorf(
			"operation `%s` still awaits %d argument(s)",
			c.name, c.Remaining()-len(args),
		)
	}
	return loaded, nil
}
