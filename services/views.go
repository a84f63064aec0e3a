package services

import (
	"time"

	"github.com/cppla/orghub/models"
)

// PostView is a post as returned to a specific caller.
type PostView struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	Organisation string          `json:"organisation"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Kind         models.PostKind `json:"kind"`
	Likes        int             `json:"likes"`
	IsPinned     bool            `json:"is_pinned"`
	ImagePath    string          `json:"image_path,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Event        *EventView      `json:"event,omitempty"`
	Donation     *DonationView   `json:"donation,omitempty"`
	Liked        int             `json:"liked"`
}

// EventView exposes an event. Members only ever contains the caller.
type EventView struct {
	Location     string    `json:"location"`
	Capacity     int       `json:"capacity"`
	Time         time.Time `json:"time"`
	MembersCount int       `json:"members_count"`
	Members      []string  `json:"members"`
}

// DonationView exposes a donation without donor identities.
type DonationView struct {
	Goal   string `json:"goal"`
	Donors int64  `json:"donors"`
}

func newPostView(p *models.Post) *PostView {
	v := &PostView{
		ID:           p.ID,
		Owner:        p.OwnerID,
		Organisation: p.OrganisationID,
		Title:        p.Title,
		Description:  p.Description,
		Kind:         p.Kind,
		Likes:        p.Likes,
		IsPinned:     p.IsPinned,
		ImagePath:    p.ImagePath,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Event != nil {
		v.Event = &EventView{
			Location:     p.Event.Location,
			Capacity:     p.Event.Capacity,
			Time:         p.Event.Time,
			MembersCount: p.Event.MembersCount,
			Members:      []string{},
		}
	}
	if p.Donation != nil {
		v.Donation = &DonationView{Goal: p.Donation.Goal}
	}
	return v
}
