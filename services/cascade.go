package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
)

// Cascade deletes a post with everything that depends on it.
//
// All database steps share one transaction: comments and replies are collected,
// then the post with its sub-records, the comments, the replies and every vote
// on any of them are deleted and the organisation's post count is recomputed.
// Attachment removal can not join the transaction, so a PendingCleanup marker is
// committed with it and the post directory is removed afterwards; a failed
// removal stays marked and is retried by the janitor.
type Cascade struct {
	db       *gorm.DB
	orgs     *Organisations
	cleanups *Cleanups
	logger   *zap.Logger
}

// NewCascade creates a Cascade deleter.
func NewCascade(db *gorm.DB, orgs *Organisations, cleanups *Cleanups, logger *zap.Logger) *Cascade {
	return &Cascade{db: db, orgs: orgs, cleanups: cleanups, logger: logger}
}

// CascadeResult summarises what a cascade removed.
type CascadeResult struct {
	Comments          int   `json:"comments"`
	Replies           int   `json:"replies"`
	Votes             int64 `json:"votes"`
	OrganisationPosts int64 `json:"organisation_posts"`
}

// Delete removes post and its dependants.
func (c *Cascade) Delete(ctx context.Context, post *models.Post) (*CascadeResult, error) {
	var (
		res    CascadeResult
		marker *models.PendingCleanup
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var commentIDs, replyIDs []string
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", post.ID).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if len(commentIDs) > 0 {
			if err := tx.Model(&models.Reply{}).Where("comment_id IN ?", commentIDs).Pluck("id", &replyIDs).Error; err != nil {
				return err
			}
		}
		res.Comments, res.Replies = len(commentIDs), len(replyIDs)

		if err := tx.Delete(&models.Post{}, "id = ?", post.ID).Error; err != nil {
			return err
		}
		for _, m := range []interface{}{&models.Event{}, &models.EventMember{}, &models.Donation{}, &models.Donor{}} {
			if err := tx.Where("post_id = ?", post.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if len(commentIDs) > 0 {
			if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.Reply{}).Error; err != nil {
				return err
			}
		}

		votes := tx.Where("(target_type = ? AND target_id = ?)", models.VoteTargetPost, post.ID)
		if len(commentIDs) > 0 {
			votes = votes.Or("(target_type = ? AND target_id IN ?)", models.VoteTargetComment, commentIDs)
		}
		if len(replyIDs) > 0 {
			votes = votes.Or("(target_type = ? AND target_id IN ?)", models.VoteTargetReply, replyIDs)
		}
		del := votes.Delete(&models.Vote{})
		if del.Error != nil {
			return del.Error
		}
		res.Votes = del.RowsAffected

		total, err := c.orgs.RecountPosts(tx, post.OrganisationID)
		if err != nil {
			return err
		}
		res.OrganisationPosts = total

		if post.ImagePath != "" {
			marker, err = c.cleanups.Mark(tx, post.ID, PostPrefix(post.OrganisationID, post.ID), true)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cascade delete post %s: %w", post.ID, err)
	}

	if marker != nil {
		// a failure here is retried later, the post is already gone
		_ = c.cleanups.Run(ctx, marker)
	}
	c.logger.Info("post cascade deleted",
		zap.String("post_id", post.ID),
		zap.Int("comments", res.Comments),
		zap.Int("replies", res.Replies),
		zap.Int64("votes", res.Votes))
	return &res, nil
}
