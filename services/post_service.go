package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
	"github.com/cppla/orghub/utils"
)

const (
	postDetailTTL   = 2 * time.Minute
	defaultPageSize = 20
	maxPageSize     = 100
)

// Listing filters.
const (
	FilterNewest = "newest"
	FilterTop    = "top"
)

// CaptchaVerifier checks a bot-check token issued to the client.
type CaptchaVerifier interface {
	Verify(token string) bool
}

// Deps wires the collaborators of a PostService.
type Deps struct {
	DB      *gorm.DB
	Store   ObjectStore
	Staging *Staging
	Captcha CaptchaVerifier
	Cache   Cache // optional
	Logger  *zap.Logger
	// DevSecretHash is a bcrypt hash tester accounts may answer the captcha with.
	DevSecretHash string
}

// PostService runs the post operations on behalf of an authenticated account.
type PostService struct {
	db            *gorm.DB
	builder       *Builder
	orgs          *Organisations
	staging       *Staging
	attachments   *Attachments
	cleanups      *Cleanups
	votes         *VoteEngine
	members       *Membership
	cascade       *Cascade
	gate          Gate
	captcha       CaptchaVerifier
	cache         Cache
	logger        *zap.Logger
	devSecretHash string
}

// NewPostService assembles a PostService from its dependencies.
func NewPostService(d Deps) *PostService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := cacheOrNop(d.Cache)
	orgs := NewOrganisations(d.DB, cache)
	cleanups := NewCleanups(d.DB, d.Store, logger)
	return &PostService{
		db:            d.DB,
		builder:       NewBuilder(orgs),
		orgs:          orgs,
		staging:       d.Staging,
		attachments:   NewAttachments(d.Store, d.Staging, logger),
		cleanups:      cleanups,
		votes:         NewVoteEngine(d.DB),
		members:       NewMembership(d.DB),
		cascade:       NewCascade(d.DB, orgs, cleanups, logger),
		captcha:       d.Captcha,
		cache:         cache,
		logger:        logger,
		devSecretHash: d.DevSecretHash,
	}
}

// Builder exposes the validator so tests can pin its clock.
func (s *PostService) Builder() *Builder { return s.builder }

// Cleanups exposes the cleanup runner for the janitor.
func (s *PostService) Cleanups() *Cleanups { return s.cleanups }

func detailKey(id string) string {
	return "cache:post:detail:" + id
}

func (s *PostService) invalidate(ctx context.Context, id string) {
	s.cache.InvalidateByPrefix(ctx, detailKey(id))
}

// ListQuery selects and orders posts.
type ListQuery struct {
	Organisation string
	Category     string
	Filter       string
	SortByPinned bool
	Page         int
	PageSize     int
}

// PostPage is one page of a post listing.
type PostPage struct {
	Items    []*PostView `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

// List returns the posts matching q, each annotated with the caller's vote.
func (s *PostService) List(ctx context.Context, account Account, q ListQuery) (*PostPage, error) {
	query := s.db.WithContext(ctx).Model(&models.Post{})
	if q.Category != "" {
		kind := models.PostKind(q.Category)
		if !kind.Valid() {
			return nil, Invalid("Invalid category")
		}
		query = query.Where("kind = ?", kind)
	}
	switch q.Filter {
	case "", FilterNewest, FilterTop:
	default:
		return nil, Invalid("Invalid filter")
	}
	if q.Organisation != "" {
		if !IsID(q.Organisation) {
			return nil, Invalid("Invalid organisation id")
		}
		if _, err := s.orgs.Approved(ctx, q.Organisation); err != nil {
			return nil, err
		}
		query = query.Where("organisation_id = ?", q.Organisation)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	if q.SortByPinned {
		query = query.Order("is_pinned DESC")
	}
	if q.Filter == FilterTop {
		query = query.Order("likes DESC")
	}
	query = query.Order("created_at DESC")

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	var posts []models.Post
	if err := query.Preload("Event").Preload("Donation").
		Offset((page - 1) * size).Limit(size).Find(&posts).Error; err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(posts))
	for i := range posts {
		ids = append(ids, posts[i].ID)
	}
	liked, err := s.votes.ValuesFor(ctx, account.ID, ids)
	if err != nil {
		return nil, err
	}
	items := make([]*PostView, 0, len(posts))
	for i := range posts {
		v := newPostView(&posts[i])
		v.Liked = int(liked[posts[i].ID])
		items = append(items, v)
	}
	return &PostPage{Items: items, Page: page, PageSize: size, Total: total}, nil
}

// Create validates in and stores a new post owned by account.
func (s *PostService) Create(ctx context.Context, account Account, in PostInput) (view *PostView, err error) {
	var placed string
	defer func() {
		if err == nil {
			return
		}
		s.attachments.Discard(placed)
		if in.Attachment != "" {
			s.staging.Discard(ctx, account.ID, in.Attachment)
		}
	}()

	if err := s.verifyCaptcha(account, in.CaptchaToken); err != nil {
		return nil, err
	}
	draft, err := s.builder.Build(ctx, in)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	post := draft.Post(id, account.ID)

	var staged *models.StagedAttachment
	if in.Attachment != "" {
		if staged, err = s.staging.Resolve(ctx, account.ID, in.Attachment); err != nil {
			return nil, err
		}
		if placed, err = s.attachments.Place(staged, post.OrganisationID, id); err != nil {
			return nil, err
		}
		post.ImagePath = placed
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if staged != nil {
			if err := s.staging.Consume(tx, staged); err != nil {
				return err
			}
		}
		_, err := s.orgs.RecountPosts(tx, post.OrganisationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("post created", zap.String("post_id", id), zap.String("owner", account.ID), zap.String("kind", string(post.Kind)))
	return newPostView(post), nil
}

// DiscardUpload drops a staged upload of account that no request will use.
func (s *PostService) DiscardUpload(ctx context.Context, account Account, uploadID string) {
	s.staging.Discard(ctx, account.ID, uploadID)
}

func (s *PostService) verifyCaptcha(account Account, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return MissingField("Missing token")
	}
	if account.IsTester && s.devSecretHash != "" && utils.CheckSecret(s.devSecretHash, token) {
		return nil
	}
	if s.captcha == nil || !s.captcha.Verify(token) {
		return CaptchaFailed("Invalid token")
	}
	return nil
}

// Get returns the post detail as seen by account.
func (s *PostService) Get(ctx context.Context, account Account, id string) (*PostView, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var base PostView
	if s.cache.GetJSON(ctx, detailKey(id), &base) {
		if err := s.refreshCounters(ctx, &base); err != nil {
			return nil, err
		}
	} else {
		post, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		base = *newPostView(post)
		if base.Donation != nil {
			if err := s.db.WithContext(ctx).Model(&models.Donor{}).Where("post_id = ?", id).Count(&base.Donation.Donors).Error; err != nil {
				return nil, err
			}
		}
		s.cache.SetJSON(ctx, detailKey(id), base, postDetailTTL)
	}

	view := base
	if base.Event != nil {
		ev := *base.Event
		ev.Members = []string{}
		joined, err := s.members.IsMember(ctx, id, account.ID)
		if err != nil {
			return nil, err
		}
		if joined {
			ev.Members = append(ev.Members, account.ID)
		}
		view.Event = &ev
	}
	liked, err := s.votes.ValueOf(ctx, id, account.ID)
	if err != nil {
		return nil, err
	}
	view.Liked = int(liked)
	return &view, nil
}

// postCounters are the fields votes, pins and joins change. They are always
// read from the database, a cached view only supplies the rest.
type postCounters struct {
	Likes        int
	IsPinned     bool
	MembersCount int
}

func (s *PostService) refreshCounters(ctx context.Context, view *PostView) error {
	var c postCounters
	res := s.db.WithContext(ctx).Model(&models.Post{}).
		Select("posts.likes AS likes, posts.is_pinned AS is_pinned, COALESCE(events.members_count, 0) AS members_count").
		Joins("LEFT JOIN events ON events.post_id = posts.id").
		Where("posts.id = ?", view.ID).
		Scan(&c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.invalidate(ctx, view.ID)
		return NotFound("No such post")
	}
	view.Likes = c.Likes
	view.IsPinned = c.IsPinned
	if view.Event != nil {
		view.Event.MembersCount = c.MembersCount
	}
	return nil
}

// Edit applies the supplied fields to a post owned by account.
func (s *PostService) Edit(ctx context.Context, account Account, id string, in PostInput) (view *PostView, err error) {
	var placed string
	defer func() {
		if err == nil {
			return
		}
		s.attachments.Discard(placed)
		if in.Attachment != "" {
			s.staging.Discard(ctx, account.ID, in.Attachment)
		}
	}()

	post, err := s.loadChecked(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckEdit(account, post); err != nil {
		return nil, err
	}
	if err := s.builder.ApplyEdit(post, in); err != nil {
		return nil, err
	}
	if post.Event != nil && post.Event.Capacity < post.Event.MembersCount {
		return nil, Invalid("Capacity is lower than the number of members")
	}

	previous := post.ImagePath
	var staged *models.StagedAttachment
	if in.Attachment != "" {
		if staged, err = s.staging.Resolve(ctx, account.ID, in.Attachment); err != nil {
			return nil, err
		}
		key, err := s.attachments.Place(staged, post.OrganisationID, post.ID)
		if err != nil {
			return nil, err
		}
		if key != previous {
			placed = key
		}
		post.ImagePath = key
	}

	var marker *models.PendingCleanup
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Updates(map[string]interface{}{
			"title":       post.Title,
			"description": post.Description,
			"image_path":  post.ImagePath,
			"updated_at":  time.Now(),
		}).Error
		if err != nil {
			return err
		}
		if post.Event != nil {
			err := tx.Model(&models.Event{}).Where("post_id = ?", post.ID).Updates(map[string]interface{}{
				"location": post.Event.Location,
				"capacity": post.Event.Capacity,
				"time":     post.Event.Time,
			}).Error
			if err != nil {
				return err
			}
		}
		if post.Donation != nil {
			if err := tx.Model(&models.Donation{}).Where("post_id = ?", post.ID).Update("goal", post.Donation.Goal).Error; err != nil {
				return err
			}
		}
		if staged != nil {
			if err := s.staging.Consume(tx, staged); err != nil {
				return err
			}
			if previous != "" && previous != post.ImagePath {
				if marker, err = s.cleanups.Mark(tx, post.ID, previous, false); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if marker != nil {
		_ = s.cleanups.Run(ctx, marker)
	}
	s.invalidate(ctx, post.ID)
	return s.Get(ctx, account, post.ID)
}

// DeleteImage removes the attachment of a post owned by account.
func (s *PostService) DeleteImage(ctx context.Context, account Account, id string) error {
	post, err := s.loadChecked(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.CheckDeleteImage(account, post); err != nil {
		return err
	}
	if post.ImagePath == "" {
		return NotFound("No image found in post")
	}
	var marker *models.PendingCleanup
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Update("image_path", "").Error; err != nil {
			return err
		}
		marker, err = s.cleanups.Mark(tx, post.ID, post.ImagePath, false)
		return err
	})
	if err != nil {
		return err
	}
	_ = s.cleanups.Run(ctx, marker)
	s.invalidate(ctx, post.ID)
	return nil
}

// Delete removes a post and everything depending on it.
func (s *PostService) Delete(ctx context.Context, account Account, id string) (*CascadeResult, error) {
	post, err := s.loadChecked(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckDelete(account, post); err != nil {
		return nil, err
	}
	res, err := s.cascade.Delete(ctx, post)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, post.ID)
	return res, nil
}

// Like toggles an up vote of account on the post.
func (s *PostService) Like(ctx context.Context, account Account, id string) (*VoteResult, error) {
	return s.vote(ctx, account, id, Like)
}

// Dislike toggles a down vote of account on the post.
func (s *PostService) Dislike(ctx context.Context, account Account, id string) (*VoteResult, error) {
	return s.vote(ctx, account, id, Dislike)
}

func (s *PostService) vote(ctx context.Context, account Account, id string, action VoteAction) (*VoteResult, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	res, err := s.votes.Toggle(ctx, id, account.ID, action)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return res, nil
}

// Pin marks a post as pinned.
func (s *PostService) Pin(ctx context.Context, account Account, id string) error {
	return s.setPinned(ctx, account, id, true)
}

// Unpin clears the pinned mark of a post.
func (s *PostService) Unpin(ctx context.Context, account Account, id string) error {
	return s.setPinned(ctx, account, id, false)
}

func (s *PostService) setPinned(ctx context.Context, account Account, id string, pinned bool) error {
	post, err := s.loadChecked(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.CheckPin(account, post, pinned); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", post.ID).Update("is_pinned", pinned).Error; err != nil {
		return err
	}
	s.invalidate(ctx, post.ID)
	return nil
}

// Join adds account to the post's event and returns the new member count.
func (s *PostService) Join(ctx context.Context, account Account, id string) (int, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	n, err := s.members.Join(ctx, id, account.ID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, id)
	return n, nil
}

// Leave removes account from the post's event and returns the new member count.
func (s *PostService) Leave(ctx context.Context, account Account, id string) (int, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	n, err := s.members.Leave(ctx, id, account.ID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, id)
	return n, nil
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return MissingField("Missing id")
	}
	if !IsID(id) {
		return Invalid("Invalid id")
	}
	return nil
}

func (s *PostService) loadChecked(ctx context.Context, id string) (*models.Post, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *PostService) load(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Preload("Event").Preload("Donation").Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("No such post")
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}
