package types

import (
	"time"
)

// DefaultAvatarURL is rendered for messages whose author has no avatar.
const DefaultAvatarURL = "https://api.adorable.io/avatars/23/abott@adorable.png"

type User struct {
	Id          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	Text      string    `json:"text"`
	AuthorId  string    `json:"author_id"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Avatar returns the author's avatar URL, falling back to the default
// placeholder when the author has none. Terminal front-ends label
// messages with the author's name instead; this is for front-ends
// that can render images.
func (m Message) Avatar() string {
	if m.AvatarURL != "" {
		return m.AvatarURL
	}
	return DefaultAvatarURL
}
