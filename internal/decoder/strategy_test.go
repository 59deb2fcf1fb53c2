package decoder

import (
	"errors"
	"testing"
)

func split(n int) Strategy[[]byte] {
	return StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		if len(w) < n {
			return nil, nil, NeedMore(n - len(w))
		}
		return w[:n], w[n:], nil
	})
}

func TestCheckAndIsNeeded(t *testing.T) {
	s := split(2)

	if !IsNeeded(s, []byte{1}) {
		t.Error("IsNeeded on short window = false, want true")
	}
	if IsNeeded(s, []byte{1, 2}) {
		t.Error("IsNeeded on full window = true, want false")
	}
	if err := Check(s, []byte{1, 2, 3}); err != nil {
		t.Errorf("Check = %v, want nil", err)
	}

	bad := errors.New("bad magic")
	failing := StrategyFunc[int](func([]byte) (int, []byte, error) { return 0, nil, bad })
	if IsNeeded[int](failing, nil) {
		t.Error("a failing strategy must not report need more")
	}
	if err := Check[int](failing, nil); !errors.Is(err, bad) {
		t.Errorf("Check = %v, want %v", err, bad)
	}
}

func TestNeedMoreHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		hint int
		ok   bool
	}{
		{"with hint", NeedMore(7), 7, true},
		{"unknown", NeedMore(0), 0, true},
		{"negative clamps", NeedMore(-3), 0, true},
		{"other error", errors.New("x"), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hint, ok := NeedMoreHint(tc.err)
			if hint != tc.hint || ok != tc.ok {
				t.Errorf("NeedMoreHint = (%d, %v), want (%d, %v)", hint, ok, tc.hint, tc.ok)
			}
		})
	}
}

func TestNeedMoreErrorMessage(t *testing.T) {
	if got := NeedMore(3).Error(); got != "decoder: incomplete, need 3 more bytes" {
		t.Errorf("message = %q", got)
	}
	if got := NeedMore(0).Error(); got != "decoder: incomplete" {
		t.Errorf("message = %q", got)
	}
}

func TestStrategyDecodeIsIdempotent(t *testing.T) {
	s := split(3)
	window := []byte{9, 8, 7, 6}

	item1, tail1, err1 := s.Decode(window)
	item2, tail2, err2 := s.Decode(window)

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if string(item1) != string(item2) || len(tail1) != len(tail2) {
		t.Errorf("outcomes differ: (%v,%v) vs (%v,%v)", item1, tail1, item2, tail2)
	}
}
