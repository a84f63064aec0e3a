package models

import "time"

// Organisation owns posts. Only approved organisations accept new posts.
type Organisation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Approved  bool      `gorm:"index;not null;default:false" json:"approved"`
	Posts     int       `gorm:"not null;default:0" json:"posts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
