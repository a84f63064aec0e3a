package models

import "time"

// VoteTarget is the kind of content a vote points at.
type VoteTarget string

const (
	VoteTargetPost    VoteTarget = "post"
	VoteTargetComment VoteTarget = "comment"
	VoteTargetReply   VoteTarget = "reply"
)

// Vote stores a single account's endorsement. A missing row means neutral.
type Vote struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TargetType VoteTarget `gorm:"size:16;uniqueIndex:idx_vote_target_account;index:idx_vote_target;not null" json:"target_type"`
	TargetID   string     `gorm:"size:36;uniqueIndex:idx_vote_target_account;index:idx_vote_target;not null" json:"target_id"`
	AccountID  string     `gorm:"size:36;uniqueIndex:idx_vote_target_account;not null" json:"account_id"`
	Value      int        `gorm:"not null" json:"value"` // 1 or -1
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
