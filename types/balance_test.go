package types

import "testing"

func TestNewBalanceClamps(t *testing.T) {
	b := NewBalance(-3, 5)
	if b.FreeRemaining != 0 || b.PaidCredits != 5 {
		t.Errorf("expected free=0 paid=5, got %s", b)
	}
	if !b.Valid() {
		t.Error("clamped balance should be valid")
	}
}

func TestBalanceDebit(t *testing.T) {
	tests := []struct {
		name   string
		start  Balance
		cost   int64
		want   Balance
		wantOK bool
	}{
		{"free only", NewBalance(4, 0), 1, NewBalance(3, 0), true},
		{"free exhausted exactly", NewBalance(1, 0), 1, NewBalance(0, 0), true},
		{"spills into paid", NewBalance(2, 5), 4, NewBalance(0, 3), true},
		{"paid only", NewBalance(0, 4), 1, NewBalance(0, 3), true},
		{"entire total", NewBalance(2, 3), 5, NewBalance(0, 0), true},
		{"insufficient", NewBalance(1, 1), 3, NewBalance(1, 1), false},
		{"empty", Zero, 1, Zero, false},
		{"negative cost", NewBalance(1, 1), -1, NewBalance(1, 1), false},
		{"invalid start", Balance{FreeRemaining: -1, PaidCredits: 10}, 1, Balance{FreeRemaining: -1, PaidCredits: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.start.Debit(tt.cost)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if ok && got.Total()+tt.cost != tt.start.Total() {
				t.Errorf("debit did not conserve total: %d + %d != %d", got.Total(), tt.cost, tt.start.Total())
			}
			if !got.Valid() && tt.start.Valid() {
				t.Errorf("debit produced a negative count: %s", got)
			}
		})
	}
}

func TestBalanceString(t *testing.T) {
	if got := NewBalance(4, 2).String(); got != "free=4 paid=2" {
		t.Errorf("String() = %q", got)
	}
}
