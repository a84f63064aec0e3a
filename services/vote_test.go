package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
)

func TestNextVote(t *testing.T) {
	cases := []struct {
		current VoteValue
		action  VoteAction
		want    VoteValue
	}{
		{VoteNone, Like, VoteUp},
		{VoteUp, Like, VoteNone},
		{VoteDown, Like, VoteUp},
		{VoteNone, Dislike, VoteDown},
		{VoteDown, Dislike, VoteNone},
		{VoteUp, Dislike, VoteDown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NextVote(tc.current, tc.action), "%d then %d", tc.current, tc.action)
	}
}

func postLikes(t *testing.T, db *gorm.DB, id string) int {
	t.Helper()
	var p models.Post
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.Likes
}

func TestToggleLikeTwiceReturnsToNeutral(t *testing.T) {
	db := newTestDB(t)
	post := seedPost(t, db, seedOrg(t, db, true).ID, models.PostKindDiscussion)
	engine := NewVoteEngine(db)
	ctx := context.Background()

	res, err := engine.Toggle(ctx, post.ID, "a", Like)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Total: 1, Value: 1}, *res)

	res, err = engine.Toggle(ctx, post.ID, "a", Like)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Total: 0, Value: 0}, *res)
	assert.Equal(t, 0, postLikes(t, db, post.ID))

	var rows int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&rows).Error)
	assert.Zero(t, rows, "neutral votes are not stored")
}

func TestAggregateMatchesVoteSum(t *testing.T) {
	db := newTestDB(t)
	post := seedPost(t, db, seedOrg(t, db, true).ID, models.PostKindDiscussion)
	engine := NewVoteEngine(db)
	ctx := context.Background()

	steps := []struct {
		account string
		action  VoteAction
		total   int
		value   int
	}{
		{"a", Like, 1, 1},
		{"b", Dislike, 0, -1},
		{"c", Dislike, -1, -1},
		{"a", Dislike, -3, -1},
		{"b", Like, -1, 1},
		{"c", Dislike, 0, 0},
		{"b", Like, -1, 0},
	}
	for i, s := range steps {
		res, err := engine.Toggle(ctx, post.ID, s.account, s.action)
		require.NoError(t, err)
		assert.Equal(t, s.total, res.Total, "step %d", i)
		assert.Equal(t, s.value, res.Value, "step %d", i)

		total, err := sumVotes(db, post.ID)
		require.NoError(t, err)
		assert.Equal(t, int(total), postLikes(t, db, post.ID), "step %d", i)
	}

	values, err := engine.ValuesFor(ctx, "a", []string{post.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, map[string]VoteValue{post.ID: VoteDown}, values)
}

func TestToggleUnknownPost(t *testing.T) {
	db := newTestDB(t)
	_, err := NewVoteEngine(db).Toggle(context.Background(), uuid.NewString(), "a", Like)
	requireDomainError(t, err, ErrDataNotFound, "No such post")
}

func TestConcurrentTogglesKeepAggregate(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, true)
	post := seedPost(t, db, org.ID, models.PostKindDiscussion)
	engine := NewVoteEngine(db)

	accounts := make([]string, 8)
	for i := range accounts {
		accounts[i] = uuid.NewString()
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(accounts)*5)
	for i, account := range accounts {
		wg.Add(1)
		go func(i int, account string) {
			defer wg.Done()
			for step := 0; step < 5; step++ {
				action := Like
				if (i+step)%3 == 0 {
					action = Dislike
				}
				if _, err := engine.Toggle(context.Background(), post.ID, account, action); err != nil {
					errs <- err
				}
			}
		}(i, account)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	total, err := sumVotes(db, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, total, postLikes(t, db, post.ID))
}
