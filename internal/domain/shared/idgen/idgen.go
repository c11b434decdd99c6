// Package idgen produces short random identifiers and checks them against a
// store until an unused one is found.
package idgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"roomstay/internal/domain/shared/errs"
)

// Alphabet omits I, O, 0 and 1 so codes survive being read aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	defaultWarnAfter   = 4
	defaultMaxAttempts = 32
)

var ErrExhausted = errs.New(errs.KindInternal, "identifier_space_exhausted", "idgen: could not find an unused identifier")

// ExistsFunc reports whether candidate is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

type Generator struct {
	Prefix   string
	Length   int
	Alphabet string
	// WarnAfter collisions are tolerated silently; every further one is logged.
	WarnAfter int
	// MaxAttempts bounds the loop; reaching it is reported as ErrExhausted.
	MaxAttempts int
	Logger      *slog.Logger
	Random      io.Reader
}

func BookingCodes(logger *slog.Logger) Generator {
	return Generator{Prefix: "BK-", Length: 8, Logger: logger}
}

func OrderIDs(logger *slog.Logger) Generator {
	return Generator{Prefix: "PAY-", Length: 12, Logger: logger}
}

// Next draws candidates until exists reports one as free.
func (g Generator) Next(ctx context.Context, exists ExistsFunc) (string, error) {
	warnAfter := g.WarnAfter
	if warnAfter <= 0 {
		warnAfter = defaultWarnAfter
	}
	maxAttempts := g.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := g.Candidate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("idgen: uniqueness check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		if attempt >= warnAfter && g.Logger != nil {
			g.Logger.Warn("identifier collision", "prefix", g.Prefix, "attempt", attempt, "max_attempts", maxAttempts)
		}
	}
	if g.Logger != nil {
		g.Logger.Error("identifier space exhausted", "prefix", g.Prefix, "length", g.length(), "attempts", maxAttempts)
	}
	return "", ErrExhausted.WithMessage("idgen: no unused %s identifier after %d attempts", g.Prefix, maxAttempts)
}

// Candidate returns one random identifier without checking uniqueness.
func (g Generator) Candidate() (string, error) {
	alphabet := g.Alphabet
	if alphabet == "" {
		alphabet = Alphabet
	}
	src := g.Random
	if src == nil {
		src = rand.Reader
	}
	n := g.length()
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, len(g.Prefix)+n)
	out = append(out, g.Prefix...)
	buf := make([]byte, n)
	for len(out) < len(g.Prefix)+n {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("idgen: entropy read failed: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == len(g.Prefix)+n {
				break
			}
		}
	}
	return string(out), nil
}

func (g Generator) length() int {
	if g.Length <= 0 {
		return 8
	}
	return g.Length
}
