package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournal_Drops_Duplicates_And_Stale(t *testing.T) {
	req := require.New(t)
	j := newJournal()

	req.True(j.observe("onSeatStatusChange", "3", "0002"))
	req.False(j.observe("onSeatStatusChange", "3", "0002"), "same stamp must be dropped")
	req.False(j.observe("onSeatStatusChange", "3", "0001"), "older stamp must be dropped")
	req.True(j.observe("onSeatStatusChange", "3", "0003"))
}

func TestJournal_Keys_Are_Per_Event_And_Subject(t *testing.T) {
	req := require.New(t)
	j := newJournal()

	req.True(j.observe("onSeatStatusChange", "3", "0001"))
	req.True(j.observe("onSeatStatusChange", "4", "0001"), "other subject, same stamp")
	req.True(j.observe("onMediaStatusChange", "3", "0001"), "other event, same stamp")
}

func TestJournal_Empty_Stamp_Always_Passes(t *testing.T) {
	req := require.New(t)
	j := newJournal()

	req.True(j.observe("onRecvRoomText", "u1", ""))
	req.True(j.observe("onRecvRoomText", "u1", ""))
}

func TestJournal_Reset_Forgets_Stamps(t *testing.T) {
	req := require.New(t)
	j := newJournal()

	req.True(j.observe("onSeatStatusChange", "3", "0005"))
	j.reset()
	req.True(j.observe("onSeatStatusChange", "3", "0001"), "stamps must not survive a room switch")
}
