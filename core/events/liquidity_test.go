package events

import (
	"errors"
	"math/big"
	"testing"

	"liquidityhub/core/types"
)

func TestLiquidityMovementEvent(t *testing.T) {
	evt := LiquidityMovement{
		Type:         TypeLiquiditySharesTransferred,
		Asset:        " usdc ",
		Participant:  "alice",
		Counterparty: "bob",
		Shares:       big.NewInt(40),
		Value:        big.NewInt(42),
	}.Event()
	if evt.Type != TypeLiquiditySharesTransferred {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["asset"] != "usdc" || evt.Attributes["counterparty"] != "bob" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["shares"] != "40" || evt.Attributes["value"] != "42" {
		t.Fatalf("unexpected amounts: %+v", evt.Attributes)
	}
	if _, ok := evt.Attributes["premium"]; ok {
		t.Fatalf("premium attribute should be omitted when unset")
	}
}

func TestLiquidityAccruedOmitsEmptyFee(t *testing.T) {
	evt := LiquidityAccrued{Asset: "usdc", Index: big.NewInt(5), Timestamp: 9}.Event()
	if _, ok := evt.Attributes["feeShares"]; ok {
		t.Fatalf("fee attributes should be omitted without fee shares")
	}
	if evt.Attributes["previousIndex"] != "0" || evt.Attributes["timestamp"] != "9" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestJournalChain(t *testing.T) {
	var entries []JournalEntry
	var prev *JournalEntry
	for i, typ := range []string{TypeLiquidityAdded, TypeLiquidityDrawn, TypeLiquidityRestored} {
		entry := NextEntry(prev, &types.Event{Type: typ, Attributes: map[string]string{"i": string(rune('a' + i))}}, int64(100+i))
		entries = append(entries, entry)
		prev = &entries[len(entries)-1]
	}
	if entries[0].Sequence != 1 || entries[2].Sequence != 3 || entries[1].PrevHash != entries[0].Hash {
		t.Fatalf("unexpected chain: %+v", entries)
	}
	if err := VerifyJournal(entries); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyJournal(entries[1:]); err != nil {
		t.Fatalf("verify anchored tail: %v", err)
	}

	tampered := append([]JournalEntry(nil), entries...)
	tampered[1].Attributes = map[string]string{"i": "z"}
	if err := VerifyJournal(tampered); !errors.Is(err, ErrJournalBroken) {
		t.Fatalf("expected ErrJournalBroken, got %v", err)
	}

	reordered := []JournalEntry{entries[0], entries[2]}
	if err := VerifyJournal(reordered); !errors.Is(err, ErrJournalBroken) {
		t.Fatalf("expected ErrJournalBroken for a gap, got %v", err)
	}
}

func TestNextEntryCopiesAttributes(t *testing.T) {
	attrs := map[string]string{"k": "v"}
	entry := NextEntry(nil, &types.Event{Type: "x", Attributes: attrs}, 1)
	attrs["k"] = "changed"
	if err := entry.Verify(nil); err != nil {
		t.Fatalf("entry should not alias caller attributes: %v", err)
	}
}
