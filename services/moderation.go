package services

import "github.com/cppla/orghub/models"

// Account is the authenticated caller as provided by the auth middleware.
type Account struct {
	ID         string
	IsAdmin    bool
	IsTester   bool
	Moderation []string // organisation ids this account moderates
}

// Moderates reports whether organisationID is inside the account's moderation scope.
func (a Account) Moderates(organisationID string) bool {
	for _, id := range a.Moderation {
		if id == organisationID {
			return true
		}
	}
	return false
}

// Capabilities lists what an account may do with a post.
type Capabilities struct {
	CanEdit        bool
	CanDeleteImage bool
	CanDelete      bool
	CanPin         bool
}

// CapabilitiesFor computes the account's rights over post.
func CapabilitiesFor(account Account, post *models.Post) Capabilities {
	owner := account.ID != "" && account.ID == post.OwnerID
	staff := account.IsAdmin || account.Moderates(post.OrganisationID)
	return Capabilities{
		CanEdit:        owner,
		CanDeleteImage: owner,
		CanDelete:      owner || staff,
		CanPin:         staff,
	}
}

// Gate turns capabilities into the errors returned to callers.
type Gate struct{}

func (Gate) CheckEdit(account Account, post *models.Post) error {
	if !CapabilitiesFor(account, post).CanEdit {
		return Invalid("Unauthorised to edit non-personal post")
	}
	return nil
}

func (Gate) CheckDeleteImage(account Account, post *models.Post) error {
	if !CapabilitiesFor(account, post).CanDeleteImage {
		return Invalid("Unauthorised to edit non-personal post")
	}
	return nil
}

func (Gate) CheckDelete(account Account, post *models.Post) error {
	if !CapabilitiesFor(account, post).CanDelete {
		return Invalid("Unauthorised to delete non-personal post")
	}
	return nil
}

// CheckPin validates a pin (pinned=true) or unpin (pinned=false) request.
func (Gate) CheckPin(account Account, post *models.Post, pinned bool) error {
	if !CapabilitiesFor(account, post).CanPin {
		return Invalid("Insufficient access to pin post")
	}
	if post.IsPinned == pinned {
		if pinned {
			return Invalid("Post already pinned")
		}
		return Invalid("Post already unpinned")
	}
	return nil
}
