package models

import "time"

// StagedAttachment records an uploaded file waiting to be bound to a post.
// Rows past ExpireAt are swept together with their file.
type StagedAttachment struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	AccountID  string    `gorm:"size:36;index;not null" json:"account_id"`
	StoredName string    `gorm:"size:255;not null" json:"-"` // name inside the staging directory
	Filename   string    `gorm:"size:255;not null" json:"filename"`
	Size       int64     `json:"size"`
	ExpireAt   time.Time `gorm:"index" json:"expire_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// PendingCleanup is a durable marker for a storage removal that still has to
// happen after its database change was committed.
type PendingCleanup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"size:36;index" json:"post_id"`
	Key       string    `gorm:"size:1024;not null" json:"key"`
	Recursive bool      `gorm:"not null;default:false" json:"recursive"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	LastError string    `gorm:"size:1024" json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All lists every model that is migrated at boot.
func All() []interface{} {
	return []interface{}{
		&Organisation{},
		&Post{},
		&Event{},
		&EventMember{},
		&Donation{},
		&Donor{},
		&Vote{},
		&Comment{},
		&Reply{},
		&StagedAttachment{},
		&PendingCleanup{},
	}
}
