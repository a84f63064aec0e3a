package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/cppla/orghub/middleware"
	"github.com/cppla/orghub/services"
	"github.com/cppla/orghub/utils"
)

const genericFailure = "Something went wrong, try again later"

// PostController exposes post operations over HTTP.
type PostController struct {
	posts  *services.PostService
	logger *zap.Logger
}

// NewPostController creates a new PostController instance.
func NewPostController(posts *services.PostService, logger *zap.Logger) *PostController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostController{posts: posts, logger: logger}
}

// flexString accepts a JSON string or number, form clients send numbers as text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type postRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Organisation  string     `json:"organisation"`
	Attachment    string     `json:"attachment"`
	Event         bool       `json:"event"`
	Donation      bool       `json:"donation"`
	EventLocation string     `json:"event_location"`
	EventCapacity flexString `json:"event_capacity"`
	EventTime     string     `json:"event_time"`
	DonationGoal  flexString `json:"donation_goal"`
	Token         string     `json:"token"`
}

func (r postRequest) input() services.PostInput {
	return services.PostInput{
		Title:         r.Title,
		Description:   r.Description,
		Organisation:  r.Organisation,
		Attachment:    strings.TrimSpace(r.Attachment),
		Event:         r.Event,
		Donation:      r.Donation,
		EventLocation: r.EventLocation,
		EventCapacity: string(r.EventCapacity),
		EventTime:     r.EventTime,
		DonationGoal:  string(r.DonationGoal),
		CaptchaToken:  r.Token,
	}
}

// bindPost decodes a create or edit payload. When the payload is rejected, the
// staged upload it names is discarded right away.
func (p *PostController) bindPost(ctx *gin.Context, account services.Account) (postRequest, bool) {
	var req postRequest
	err := ctx.ShouldBindBodyWith(&req, binding.JSON)
	if err == nil {
		return req, true
	}
	var ref struct {
		Attachment string `json:"attachment"`
	}
	if raw, ok := ctx.Get(gin.BodyBytesKey); ok {
		if body, ok := raw.([]byte); ok && json.Unmarshal(body, &ref) == nil && ref.Attachment != "" {
			p.posts.DiscardUpload(ctx.Request.Context(), account, strings.TrimSpace(ref.Attachment))
		}
	}
	p.logger.Debug("rejected post payload", zap.String("account", account.ID), zap.Error(err))
	utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
	return req, false
}

// ListPosts returns posts, optionally filtered by organisation and category.
func (p *PostController) ListPosts(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	result, err := p.posts.List(ctx.Request.Context(), account, services.ListQuery{
		Organisation: strings.TrimSpace(ctx.Query("organisation")),
		Category:     strings.TrimSpace(ctx.Query("category")),
		Filter:       strings.TrimSpace(ctx.Query("filter")),
		SortByPinned: parseBool(ctx.Query("sort_by_pinned")),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, result)
}

// CreatePost validates the payload and stores a new post.
func (p *PostController) CreatePost(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	req, ok := p.bindPost(ctx, account)
	if !ok {
		return
	}
	view, err := p.posts.Create(ctx.Request.Context(), account, req.input())
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Created(ctx, gin.H{"post": view})
}

// GetPost returns a single post as seen by the caller.
func (p *PostController) GetPost(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	view, err := p.posts.Get(ctx.Request.Context(), account, ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": view})
}

// UpdatePost applies a partial edit.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	req, ok := p.bindPost(ctx, account)
	if !ok {
		return
	}
	view, err := p.posts.Edit(ctx.Request.Context(), account, ctx.Param("id"), req.input())
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": view})
}

// DeletePostImage removes the post attachment.
func (p *PostController) DeletePostImage(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	if err := p.posts.DeleteImage(ctx.Request.Context(), account, ctx.Param("id")); err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "image deleted"})
}

// DeletePost removes the post with its comments, replies, votes and files.
func (p *PostController) DeletePost(ctx *gin.Context) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	res, err := p.posts.Delete(ctx.Request.Context(), account, ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "post deleted", "removed": res})
}

// LikePost toggles the caller's up vote.
func (p *PostController) LikePost(ctx *gin.Context) {
	p.vote(ctx, p.posts.Like)
}

// DislikePost toggles the caller's down vote.
func (p *PostController) DislikePost(ctx *gin.Context) {
	p.vote(ctx, p.posts.Dislike)
}

type voteFunc func(context.Context, services.Account, string) (*services.VoteResult, error)

func (p *PostController) vote(ctx *gin.Context, fn voteFunc) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	res, err := fn(ctx.Request.Context(), account, ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// PinPost pins a post to the top of its organisation.
func (p *PostController) PinPost(ctx *gin.Context) {
	p.pin(ctx, true)
}

// UnpinPost clears the pin.
func (p *PostController) UnpinPost(ctx *gin.Context) {
	p.pin(ctx, false)
}

func (p *PostController) pin(ctx *gin.Context, pinned bool) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	var err error
	if pinned {
		err = p.posts.Pin(ctx.Request.Context(), account, ctx.Param("id"))
	} else {
		err = p.posts.Unpin(ctx.Request.Context(), account, ctx.Param("id"))
	}
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"is_pinned": pinned})
}

// JoinEvent adds the caller to the post's event.
func (p *PostController) JoinEvent(ctx *gin.Context) {
	p.membership(ctx, p.posts.Join)
}

// LeaveEvent removes the caller from the post's event.
func (p *PostController) LeaveEvent(ctx *gin.Context) {
	p.membership(ctx, p.posts.Leave)
}

func (p *PostController) membership(ctx *gin.Context, fn func(context.Context, services.Account, string) (int, error)) {
	account, ok := requireAccount(ctx)
	if !ok {
		return
	}
	n, err := fn(ctx.Request.Context(), account, ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"members_count": n})
}

// fail maps a service error onto the response envelope. Unexpected errors are
// logged and hidden behind a generic message.
func (p *PostController) fail(ctx *gin.Context, err error) {
	if de, ok := services.AsDomainError(err); ok {
		utils.Error(ctx, services.HTTPStatus(de.Code), businessCode(de.Code), de.Message)
		return
	}
	p.logger.Error("request failed",
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.Request.URL.Path),
		zap.Error(err))
	utils.Error(ctx, http.StatusInternalServerError, 50000, genericFailure)
}

func businessCode(code string) int {
	switch code {
	case services.ErrMissingField:
		return 40001
	case services.ErrValidation:
		return 40002
	case services.ErrCaptchaValidation:
		return 40003
	case services.ErrDataNotFound:
		return 40401
	default:
		return 50000
	}
}

func requireAccount(ctx *gin.Context) (services.Account, bool) {
	account, ok := middleware.AccountFrom(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return services.Account{}, false
	}
	return account, true
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
