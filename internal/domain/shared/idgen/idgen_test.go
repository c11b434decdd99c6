package idgen

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCandidate_UsesPrefixAndAlphabet(t *testing.T) {
	g := BookingCodes(nil)
	code, err := g.Candidate()
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if !strings.HasPrefix(code, "BK-") || len(code) != len("BK-")+8 {
		t.Fatalf("unexpected code %q", code)
	}
	for _, r := range strings.TrimPrefix(code, "BK-") {
		if !strings.ContainsRune(Alphabet, r) {
			t.Fatalf("code %q contains %q outside the alphabet", code, r)
		}
	}
}

func TestCandidate_SkipsBiasedBytes(t *testing.T) {
	// 256 % 32 == 0, so every byte is usable: byte 0 maps to 'A', 33 to 'B'.
	g := Generator{Prefix: "X", Length: 2, Random: bytes.NewReader([]byte{0, 33})}
	code, err := g.Candidate()
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if code != "XAB" {
		t.Fatalf("expected XAB, got %q", code)
	}
}

func TestNext_RetriesUntilFree(t *testing.T) {
	calls := 0
	code, err := OrderIDs(nil).Next(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 uniqueness checks, got %d", calls)
	}
	if !strings.HasPrefix(code, "PAY-") || len(code) != len("PAY-")+12 {
		t.Fatalf("unexpected order id %q", code)
	}
}

func TestNext_Exhausted(t *testing.T) {
	g := Generator{Prefix: "BK-", MaxAttempts: 5}
	_, err := g.Next(context.Background(), func(context.Context, string) (bool, error) { return true, nil })
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestNext_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("store down")
	_, err := BookingCodes(nil).Next(context.Background(), func(context.Context, string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
