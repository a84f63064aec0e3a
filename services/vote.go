package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/orghub/models"
)

// VoteValue is an account's standing on a post. VoteNone is never stored.
type VoteValue int

const (
	VoteDown VoteValue = -1
	VoteNone VoteValue = 0
	VoteUp   VoteValue = 1
)

// VoteAction is what the caller asked for.
type VoteAction int

const (
	Like VoteAction = iota
	Dislike
)

// NextVote applies action to the current value: repeating a vote clears it,
// anything else switches to the requested direction.
func NextVote(current VoteValue, action VoteAction) VoteValue {
	target := VoteUp
	if action == Dislike {
		target = VoteDown
	}
	if current == target {
		return VoteNone
	}
	return target
}

// VoteResult is returned after each toggle.
type VoteResult struct {
	Total int `json:"total"`
	Value int `json:"value"`
}

// VoteEngine toggles votes and keeps Post.Likes equal to the sum of its votes.
type VoteEngine struct {
	db *gorm.DB
}

// NewVoteEngine creates a VoteEngine.
func NewVoteEngine(db *gorm.DB) *VoteEngine {
	return &VoteEngine{db: db}
}

// Toggle applies action for accountID on postID and recomputes the aggregate.
func (v *VoteEngine) Toggle(ctx context.Context, postID, accountID string, action VoteAction) (*VoteResult, error) {
	var result VoteResult
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the row lock orders toggles on one post, so the sum below sees every committed vote
		var post models.Post
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", postID).First(&post).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("No such post")
			}
			return err
		}

		current, err := valueOf(tx, postID, accountID)
		if err != nil {
			return err
		}
		next := NextVote(current, action)

		scope := tx.Where("target_type = ? AND target_id = ? AND account_id = ?", models.VoteTargetPost, postID, accountID)
		if next == VoteNone {
			if err := scope.Delete(&models.Vote{}).Error; err != nil {
				return err
			}
		} else {
			vote := models.Vote{TargetType: models.VoteTargetPost, TargetID: postID, AccountID: accountID, Value: int(next)}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "target_type"}, {Name: "target_id"}, {Name: "account_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&vote).Error
			if err != nil {
				return err
			}
		}

		total, err := sumVotes(tx, postID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("likes", total).Error; err != nil {
			return err
		}
		result = VoteResult{Total: int(total), Value: int(next)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ValueOf returns the caller's vote on a post.
func (v *VoteEngine) ValueOf(ctx context.Context, postID, accountID string) (VoteValue, error) {
	return valueOf(v.db.WithContext(ctx), postID, accountID)
}

// ValuesFor returns the caller's votes keyed by post id. Missing posts are neutral.
func (v *VoteEngine) ValuesFor(ctx context.Context, accountID string, postIDs []string) (map[string]VoteValue, error) {
	out := make(map[string]VoteValue, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var votes []models.Vote
	err := v.db.WithContext(ctx).
		Where("target_type = ? AND account_id = ? AND target_id IN ?", models.VoteTargetPost, accountID, postIDs).
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	for _, vote := range votes {
		out[vote.TargetID] = VoteValue(vote.Value)
	}
	return out, nil
}

func valueOf(db *gorm.DB, postID, accountID string) (VoteValue, error) {
	var vote models.Vote
	err := db.Where("target_type = ? AND target_id = ? AND account_id = ?", models.VoteTargetPost, postID, accountID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return VoteNone, nil
	}
	if err != nil {
		return VoteNone, err
	}
	return VoteValue(vote.Value), nil
}

func sumVotes(db *gorm.DB, postID string) (int64, error) {
	var total int64
	err := db.Model(&models.Vote{}).
		Select("COALESCE(SUM(value), 0)").
		Where("target_type = ? AND target_id = ?", models.VoteTargetPost, postID).
		Scan(&total).Error
	return total, err
}
