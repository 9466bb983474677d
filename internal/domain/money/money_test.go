package money

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want Amount
	}{
		{12.5, 1250},
		{14.99, 1499},
		{89.95, 8995},
		{0.1 + 0.2, 30},
		{0, 0},
	}
	for _, tt := range tests {
		if got := FromFloat(tt.in); got != tt.want {
			t.Errorf("FromFloat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := map[Amount]string{
		11494: "114.94",
		2499:  "24.99",
		5:     "0.05",
		0:     "0.00",
		-150:  "-1.50",
	}
	for in, want := range tests {
		if got := in.String(); got != want {
			t.Errorf("Amount(%d).String() = %q, want %q", in, got, want)
		}
	}
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Total: 7499})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"total":74.99}` {
		t.Fatalf("unexpected json %s", b)
	}

	var a Amount
	if err := json.Unmarshal([]byte("89.95"), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a != 8995 {
		t.Fatalf("got %d, want 8995", a)
	}
	if err := json.Unmarshal([]byte(`"x"`), &a); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}

func TestTimes(t *testing.T) {
	got, err := Amount(1250).Times(3)
	if err != nil || got != 3750 {
		t.Fatalf("Times(3) = %s, %v; want 37.50", got, err)
	}
	if got, err := Amount(math.MaxInt64).Times(0); err != nil || got != 0 {
		t.Fatalf("Times(0) = %s, %v; want 0", got, err)
	}

	overflows := []struct {
		a   Amount
		qty int
	}{
		{1250, 7378697629483821},
		{math.MaxInt64, 2},
		{math.MinInt64, -1},
		{-2, math.MaxInt64},
	}
	for _, tt := range overflows {
		if _, err := tt.a.Times(tt.qty); !errors.Is(err, ErrOverflow) {
			t.Errorf("%d x %d: error = %v, want ErrOverflow", tt.a, tt.qty, err)
		}
	}
}

func TestPlus(t *testing.T) {
	if got, err := Amount(1499).Plus(1000); err != nil || got != 2499 {
		t.Fatalf("Plus = %s, %v; want 24.99", got, err)
	}
	if _, err := Amount(math.MaxInt64).Plus(1); !errors.Is(err, ErrOverflow) {
		t.Errorf("MaxInt64 + 1: error = %v, want ErrOverflow", err)
	}
	if _, err := Amount(math.MinInt64).Plus(-1); !errors.Is(err, ErrOverflow) {
		t.Errorf("MinInt64 - 1: error = %v, want ErrOverflow", err)
	}
}
