// Package rolescope maintains a per-context stack of role sets. Code that
// needs to read access-controlled data under elevated privilege derives a
// child context with Push, performs the read with that context, and lets the
// child go out of scope; the parent context keeps its original role set, so
// the prior scope is restored on every exit path, including panics.
//
// The current top of the stack is what the persistence layer consults to
// decide whether a query may see protected rows.
package rolescope

import (
	"context"
	"slices"
	"strings"
)

type ctxKey struct{}

// frame is one stack entry. Frames form an immutable linked list so that a
// derived context never mutates its parent's scope.
type frame struct {
	roles []string
	prev  *frame
}

// Push returns a child context whose current role set is exactly roles.
// The previous scope stays reachable via Pop and is untouched in the parent
// context.
func Push(ctx context.Context, roles ...string) context.Context {
	top, _ := ctx.Value(ctxKey{}).(*frame)
	return context.WithValue(ctx, ctxKey{}, &frame{
		roles: slices.Clone(roles),
		prev:  top,
	})
}

// Pop returns a context whose current role set is the one below the top of
// the stack. Popping an empty stack yields an anonymous scope. Most callers
// never need Pop: discarding the pushed context restores the prior scope.
func Pop(ctx context.Context) context.Context {
	top, _ := ctx.Value(ctxKey{}).(*frame)
	if top == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, top.prev)
}

// Current returns the role set at the top of the stack, or nil for an
// anonymous scope. The returned slice must not be mutated.
func Current(ctx context.Context) []string {
	for top, _ := ctx.Value(ctxKey{}).(*frame); top != nil; top = top.prev {
		return top.roles
	}
	return nil
}

// Has reports whether the current scope carries the given role.
// Role comparison is case-insensitive.
func Has(ctx context.Context, role string) bool {
	for _, r := range Current(ctx) {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Depth returns the number of frames on the stack. Mostly useful in tests
// asserting balanced push/pop behaviour.
func Depth(ctx context.Context) int {
	n := 0
	for top, _ := ctx.Value(ctxKey{}).(*frame); top != nil; top = top.prev {
		n++
	}
	return n
}
