package domain

// RoomState is one room record with its participants in join order.
// Store mutations receive it, change it in place and the store persists the result.
type RoomState struct {
	Room         *Room
	Participants []Participant
}

func (s *RoomState) Find(playerID int64) (int, bool) {
	for i := range s.Participants {
		if s.Participants[i].PlayerID == playerID {
			return i, true
		}
	}
	return -1, false
}

func (s *RoomState) Clone() *RoomState {
	out := &RoomState{Room: s.Room.Clone()}
	if len(s.Participants) > 0 {
		out.Participants = make([]Participant, len(s.Participants))
		copy(out.Participants, s.Participants)
		for i := range out.Participants {
			if a := out.Participants[i].AvatarURL; a != nil {
				v := *a
				out.Participants[i].AvatarURL = &v
			}
		}
	}
	return out
}
