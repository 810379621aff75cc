package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"yes": SideYes, "YES": SideYes, " No ": SideNo} {
		got, err := ParseSide(in)
		if err != nil {
			t.Fatalf("ParseSide(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSide(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseSide("maybe"); !errors.Is(err, ErrInvalidSide) {
		t.Errorf("expected ErrInvalidSide, got %v", err)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("sell"); err != nil || d != Sell {
		t.Errorf("expected SELL, got %s (%v)", d, err)
	}
	if _, err := ParseDirection("HOLD"); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestOrderFill(t *testing.T) {
	o := &Order{ID: "o1", Quantity: 100, Remaining: 100, Status: StatusOpen}

	if err := o.Fill(40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Remaining != 60 || o.Status != StatusPartiallyFilled {
		t.Errorf("expected 60 PARTIALLY_FILLED, got %d %s", o.Remaining, o.Status)
	}

	if err := o.Fill(61); !errors.Is(err, ErrIllegalFill) {
		t.Errorf("overfill should fail, got %v", err)
	}

	if err := o.Fill(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Remaining != 0 || o.Status != StatusFilled {
		t.Errorf("expected 0 FILLED, got %d %s", o.Remaining, o.Status)
	}

	if err := o.Fill(1); !errors.Is(err, ErrIllegalFill) {
		t.Errorf("filling a filled order should fail, got %v", err)
	}
}

func TestCounterQuery_BuyOrdering(t *testing.T) {
	now := time.Now()
	q := CounterQuery{SymbolID: "S", Side: SideYes, Direction: Buy, LimitPrice: 1500}

	cheap := &Order{Price: 1400, CreatedAt: now.Add(time.Second), Seq: 3}
	early := &Order{Price: 1500, CreatedAt: now, Seq: 1}
	late := &Order{Price: 1500, CreatedAt: now.Add(time.Second), Seq: 2}
	sameTime := &Order{Price: 1500, CreatedAt: now, Seq: 4}

	if !q.Better(cheap, early) {
		t.Error("lower price should rank first for a buy")
	}
	if !q.Better(early, late) {
		t.Error("earlier order should win at equal price")
	}
	if !q.Better(early, sameTime) {
		t.Error("lower sequence should win at equal price and time")
	}
}

func TestCounterQuery_Accepts(t *testing.T) {
	q := CounterQuery{SymbolID: "S", Side: SideYes, Direction: Buy, LimitPrice: 1500}

	ok := &Order{SymbolID: "S", Side: SideYes, Direction: Sell, Price: 1500, Status: StatusOpen}
	if !q.Accepts(ok) {
		t.Error("sell at the limit should be accepted")
	}

	cases := map[string]*Order{
		"too expensive":  {SymbolID: "S", Side: SideYes, Direction: Sell, Price: 1501, Status: StatusOpen},
		"same direction": {SymbolID: "S", Side: SideYes, Direction: Buy, Price: 1400, Status: StatusOpen},
		"other side":     {SymbolID: "S", Side: SideNo, Direction: Sell, Price: 1400, Status: StatusOpen},
		"cancelled":      {SymbolID: "S", Side: SideYes, Direction: Sell, Price: 1400, Status: StatusCancelled},
	}
	for name, o := range cases {
		if q.Accepts(o) {
			t.Errorf("%s: should not be accepted", name)
		}
	}

	sellQ := CounterQuery{SymbolID: "S", Side: SideYes, Direction: Sell, LimitPrice: 1400}
	bid := &Order{SymbolID: "S", Side: SideYes, Direction: Buy, Price: 1450, Status: StatusPartiallyFilled}
	if !sellQ.Accepts(bid) {
		t.Error("bid above a sell limit should be accepted")
	}
	if !sellQ.Better(bid, &Order{Price: 1400}) {
		t.Error("higher bid should rank first for a sell")
	}
}
