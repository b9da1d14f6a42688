// Package code draws human-readable visit codes: three letter/digit pairs
// such as K4P1Z9.
package code

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"regexp"

	dErrors "entrypass/pkg/domain-errors"
)

const (
	pairs           = 3
	letters         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits          = "0123456789"
	defaultMaxDraws = 16
)

var codePattern = regexp.MustCompile(`^([A-Z][0-9]){3}$`)

// ErrExhausted is returned when no unused code was found.
var ErrExhausted = dErrors.New(dErrors.CodeConflict, "code space exhausted")

// Lookup reports whether a code is already taken.
type Lookup interface {
	Exists(ctx context.Context, code string) (bool, error)
}

type Generator struct {
	lookup   Lookup
	rand     io.Reader
	maxDraws int
}

type Option func(*Generator)

// WithRandom replaces crypto/rand, for deterministic tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.rand = r
	}
}

func WithMaxDraws(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxDraws = n
		}
	}
}

func New(lookup Lookup, opts ...Option) *Generator {
	g := &Generator{lookup: lookup, rand: rand.Reader, maxDraws: defaultMaxDraws}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a code that was unused at the time of the check. The
// storage unique constraint still decides the race against concurrent inserts.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for range g.maxDraws {
		candidate, err := g.draw()
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to draw code")
		}
		taken, err := g.lookup.Exists(ctx, candidate)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check code")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) draw() (string, error) {
	out := make([]byte, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		l, err := g.pick(len(letters))
		if err != nil {
			return "", err
		}
		d, err := g.pick(len(digits))
		if err != nil {
			return "", err
		}
		out = append(out, letters[l], digits[d])
	}
	return string(out), nil
}

// pick returns a uniform index below n, rejecting bytes past the last full
// multiple of n.
func (g *Generator) pick(n int) (int, error) {
	limit := 256 - 256%n
	var b [1]byte
	for {
		if _, err := io.ReadFull(g.rand, b[:]); err != nil {
			return 0, fmt.Errorf("read random: %w", err)
		}
		if int(b[0]) < limit {
			return int(b[0]) % n, nil
		}
	}
}

// Valid reports whether s has the visit code shape.
func Valid(s string) bool {
	return codePattern.MatchString(s)
}
