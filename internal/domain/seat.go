package domain

import "errors"

var (
	ErrSeatOutOfRange = errors.New("seat index out of range")
	ErrSeatOccupied   = errors.New("seat already occupied")
	ErrSeatLocked     = errors.New("seat locked")
	ErrSeatEmpty      = errors.New("seat empty")
	ErrAlreadySeated  = errors.New("user already on a seat")
)

type SeatStatus int

const (
	SeatClosed SeatStatus = iota // empty
	SeatOpen                     // occupied, occupant publishing
)

// Seat is a numbered on-stage slot. A seat is Open iff it has an occupant.
type Seat struct {
	Index  int        `json:"index"`
	Status SeatStatus `json:"status"`
	Locked bool       `json:"locked"`
	Muted  bool       `json:"muted"`
	User   *User      `json:"user,omitempty"`
}

// SeatList is the fixed seat collection of one room. Indexes are 1-based
// on the wire and in every public method.
type SeatList []*Seat

func NewSeatList(n int) SeatList {
	seats := make(SeatList, n)
	for i := range seats {
		seats[i] = &Seat{Index: i + 1, Status: SeatClosed}
	}
	return seats
}

func (s SeatList) At(index int) (*Seat, error) {
	if index < 1 || index > len(s) {
		return nil, ErrSeatOutOfRange
	}
	return s[index-1], nil
}

// SeatOf returns the seat occupied by the given user, if any.
// At most one seat may reference a user at any time.
func (s SeatList) SeatOf(id UserID) (*Seat, bool) {
	for _, seat := range s {
		if seat.User != nil && seat.User.ID == id {
			return seat, true
		}
	}
	return nil, false
}

// Take puts a user on a seat. It refuses occupied and locked seats and
// refuses a user who is already seated elsewhere.
func (s SeatList) Take(index int, u *User) error {
	seat, err := s.At(index)
	if err != nil {
		return err
	}
	if seat.Locked {
		return ErrSeatLocked
	}
	if seat.User != nil {
		return ErrSeatOccupied
	}
	if _, seated := s.SeatOf(u.ID); seated {
		return ErrAlreadySeated
	}
	seat.User = u
	seat.Status = SeatOpen
	seat.Muted = false
	u.Status = StatusActive
	return nil
}

// Release clears a seat and returns the former occupant.
func (s SeatList) Release(index int) (*User, error) {
	seat, err := s.At(index)
	if err != nil {
		return nil, err
	}
	if seat.User == nil {
		return nil, ErrSeatEmpty
	}
	u := seat.User
	seat.User = nil
	seat.Status = SeatClosed
	seat.Muted = false
	u.Status = StatusDefault
	return u, nil
}

// Lock closes an empty seat against apply/invite.
func (s SeatList) Lock(index int) error {
	seat, err := s.At(index)
	if err != nil {
		return err
	}
	if seat.User != nil {
		return ErrSeatOccupied
	}
	seat.Locked = true
	return nil
}

func (s SeatList) Unlock(index int) error {
	seat, err := s.At(index)
	if err != nil {
		return err
	}
	seat.Locked = false
	return nil
}

// SetMuted flags a seat muted-by-host. The occupant's own mic state is
// tracked on the User and moves through media-status notifications.
func (s SeatList) SetMuted(index int, muted bool) error {
	seat, err := s.At(index)
	if err != nil {
		return err
	}
	if seat.User == nil {
		return ErrSeatEmpty
	}
	seat.Muted = muted
	return nil
}

func (s SeatList) Occupied() int {
	n := 0
	for _, seat := range s {
		if seat.User != nil {
			n++
		}
	}
	return n
}

// Clone deep-copies the list so callers can hand out snapshots.
func (s SeatList) Clone() SeatList {
	out := make(SeatList, len(s))
	for i, seat := range s {
		cp := *seat
		if seat.User != nil {
			u := *seat.User
			cp.User = &u
		}
		out[i] = &cp
	}
	return out
}
