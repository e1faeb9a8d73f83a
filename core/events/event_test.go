package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFanoutForwardsInOrder(t *testing.T) {
	var seen []string
	record := func(prefix string) Emitter {
		return EmitterFunc(func(evt Event) { seen = append(seen, prefix+":"+evt.EventType()) })
	}
	fanout := Fanout{record("a"), nil, NoopEmitter{}, record("b")}
	fanout.Emit(LiquidityMovement{Type: TypeLiquidityAdded, Asset: "usdc"})
	require.Equal(t, []string{"a:" + TypeLiquidityAdded, "b:" + TypeLiquidityAdded}, seen)

	var nilFunc EmitterFunc
	require.NotPanics(t, func() { nilFunc.Emit(LiquidityAccrued{Asset: "usdc"}) })
}
