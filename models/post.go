package models

import "time"

// PostKind tags which sub-record a post carries.
type PostKind string

const (
	PostKindDiscussion PostKind = "discussion"
	PostKindEvent      PostKind = "event"
	PostKindDonation   PostKind = "donation"
)

// Valid reports whether k is one of the known kinds.
func (k PostKind) Valid() bool {
	switch k {
	case PostKindDiscussion, PostKindEvent, PostKindDonation:
		return true
	}
	return false
}

// Post represents a community post published inside an organisation.
// Exactly one of Event or Donation is loaded, according to Kind.
type Post struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        string    `gorm:"size:36;index;not null" json:"owner"`
	OrganisationID string    `gorm:"size:36;index;not null" json:"organisation"`
	Title          string    `gorm:"size:1024;not null" json:"title"`
	Description    string    `gorm:"type:text;not null" json:"description"`
	Kind           PostKind  `gorm:"size:16;index;not null;default:'discussion'" json:"kind"`
	Likes          int       `gorm:"not null;default:0" json:"likes"`
	IsPinned       bool      `gorm:"index;not null;default:false" json:"is_pinned"`
	ImagePath      string    `gorm:"size:1024" json:"image_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Event          *Event    `gorm:"foreignKey:PostID" json:"event,omitempty"`
	Donation       *Donation `gorm:"foreignKey:PostID" json:"donation,omitempty"`
}

// Event is the capacity-bounded gathering attached to an event post.
type Event struct {
	PostID       string        `gorm:"primaryKey;size:36" json:"-"`
	Location     string        `gorm:"size:1024;not null" json:"location"`
	Capacity     int           `gorm:"not null" json:"capacity"`
	Time         time.Time     `gorm:"not null" json:"time"`
	MembersCount int           `gorm:"not null;default:0" json:"members_count"`
	Members      []EventMember `gorm:"foreignKey:PostID;references:PostID" json:"-"`
}

// EventMember records one account that joined an event.
type EventMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"size:36;uniqueIndex:idx_event_member;not null" json:"post_id"`
	AccountID string    `gorm:"size:36;uniqueIndex:idx_event_member;not null" json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Donation is the fundraising goal attached to a donation post.
type Donation struct {
	PostID string  `gorm:"primaryKey;size:36" json:"-"`
	Goal   string  `gorm:"size:32;not null" json:"goal"`
	Donors []Donor `gorm:"foreignKey:PostID;references:PostID" json:"-"`
}

// Donor records an account that donated to a post. Identities stay server side.
type Donor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"size:36;index;not null" json:"post_id"`
	AccountID string    `gorm:"size:36;index;not null" json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}
