package model

// Room is a named channel that scopes events and presence.
type Room struct {
	ID        string `json:"id"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

// RoomMember records that a user has participated in a room.
type RoomMember struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
}

// RoomSummary is a room plus its member count, used for listings.
type RoomSummary struct {
	Room
	MemberCount int `json:"member_count"`
}

// RoomDetail is a room with its members.
type RoomDetail struct {
	Room
	Members []*RoomMember `json:"members"`
}
