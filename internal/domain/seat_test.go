package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeatList_Take_And_Release(t *testing.T) {
	req := require.New(t)
	seats := NewSeatList(8)
	u, err := NewUser("alice")
	req.NoError(err)

	// Given a fresh room every seat is closed and empty
	req.Equal(8, len(seats))
	req.Equal(0, seats.Occupied())

	// When alice takes seat 3
	req.NoError(seats.Take(3, u))

	// Then seat 3 is open, occupied by alice, and alice is active
	seat, err := seats.At(3)
	req.NoError(err)
	req.Equal(SeatOpen, seat.Status)
	req.Equal(u.ID, seat.User.ID)
	req.Equal(StatusActive, u.Status)

	// When the seat is released
	left, err := seats.Release(3)
	req.NoError(err)
	req.Equal(u.ID, left.ID)
	req.Equal(SeatClosed, seat.Status)
	req.Nil(seat.User)
	req.Equal(StatusDefault, u.Status)
}

func TestSeatList_One_Seat_Per_User(t *testing.T) {
	req := require.New(t)
	seats := NewSeatList(8)
	u, _ := NewUser("alice")

	req.NoError(seats.Take(1, u))

	// A seated user cannot take a second seat
	req.ErrorIs(seats.Take(2, u), ErrAlreadySeated)

	// And at most one seat references the user
	found := 0
	for _, s := range seats {
		if s.User != nil && s.User.ID == u.ID {
			found++
		}
	}
	req.Equal(1, found)
}

func TestSeatList_Occupied_Seat_Is_Refused(t *testing.T) {
	req := require.New(t)
	seats := NewSeatList(4)
	a, _ := NewUser("alice")
	b, _ := NewUser("bob")

	req.NoError(seats.Take(2, a))
	req.ErrorIs(seats.Take(2, b), ErrSeatOccupied)
}

func TestSeatList_Lock(t *testing.T) {
	req := require.New(t)
	seats := NewSeatList(4)
	u, _ := NewUser("alice")

	req.NoError(seats.Lock(2))
	req.ErrorIs(seats.Take(2, u), ErrSeatLocked)

	// An occupied seat cannot be locked
	req.NoError(seats.Take(1, u))
	req.ErrorIs(seats.Lock(1), ErrSeatOccupied)

	req.NoError(seats.Unlock(2))
	b, _ := NewUser("bob")
	req.NoError(seats.Take(2, b))
}

func TestSeatList_Bounds(t *testing.T) {
	req := require.New(t)
	seats := NewSeatList(4)
	u, _ := NewUser("alice")

	req.ErrorIs(seats.Take(0, u), ErrSeatOutOfRange)
	req.ErrorIs(seats.Take(5, u), ErrSeatOutOfRange)
	_, err := seats.Release(9)
	req.ErrorIs(err, ErrSeatOutOfRange)
}

func TestSeatList_Clone_Is_Deep(t *testing.T) {
	req := require.New(t)
	seats := NewSeatList(2)
	u, _ := NewUser("alice")
	req.NoError(seats.Take(1, u))

	snap := seats.Clone()
	_, err := seats.Release(1)
	req.NoError(err)

	// The snapshot still shows alice seated
	req.NotNil(snap[0].User)
	req.Equal(u.ID, snap[0].User.ID)
	req.Equal(SeatOpen, snap[0].Status)
}
