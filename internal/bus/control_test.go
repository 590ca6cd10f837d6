package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlSlotOverwritesPending(t *testing.T) {
	slot := NewControlSlot()
	slot.Offer(CmdPause)
	slot.Offer(CmdResume)

	cmd, ok := slot.Take()
	require.True(t, ok)
	assert.Equal(t, CmdResume, cmd)

	_, ok = slot.Take()
	assert.False(t, ok)
}

func TestControlBusKeepsOneSlotPerCommand(t *testing.T) {
	b := NewControlBus()
	b.Offer(CmdStop)
	b.Offer(CmdPause)
	b.Offer(CmdPause)

	cmds := b.TakeAll()
	assert.Equal(t, []Command{CmdPause, CmdStop}, cmds)
	assert.Empty(t, b.TakeAll())
}

func TestControlBusNotifiesOnOffer(t *testing.T) {
	b := NewControlBus()
	b.Offer(CmdStart)

	select {
	case <-b.Wait():
	default:
		t.Fatal("expected pending notification")
	}
}

func TestControlBusIgnoresInvalidCommand(t *testing.T) {
	b := NewControlBus()
	b.Offer(CmdNone)
	assert.Empty(t, b.TakeAll())
}
