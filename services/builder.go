package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/cppla/orghub/models"
	"github.com/cppla/orghub/utils"
)

const (
	MaxTextLen     = 256
	MaxLongTextLen = 2048

	maxCapacity = 99999      // exclusive
	maxGoal     = 10000000.0 // exclusive

	// EventTimeLayout is the only accepted event time format.
	EventTimeLayout = "2006-01-02T15:04"
	// Event times are entered as UTC+8 wall clock values.
	eventZoneOffset = 8 * time.Hour
	eventMinLead    = 24 * time.Hour
)

var (
	validate = validator.New()

	numericPattern  = regexp.MustCompile(`^[+-]?([0-9]*\.)?[0-9]+$`)
	currencyPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)(\.[0-9]{1,2})?$`)
)

// Body is the sub-record a post carries. It is fixed when the post is created.
type Body interface {
	Kind() models.PostKind
}

// Discussion is a plain post without sub-record.
type Discussion struct{}

// EventBody describes a scheduled gathering.
type EventBody struct {
	Location string
	Capacity int
	Time     time.Time
}

// DonationBody describes a fundraising goal.
type DonationBody struct {
	Goal string
}

func (Discussion) Kind() models.PostKind   { return models.PostKindDiscussion }
func (EventBody) Kind() models.PostKind    { return models.PostKindEvent }
func (DonationBody) Kind() models.PostKind { return models.PostKindDonation }

// PostInput carries raw, unvalidated fields from a create or edit request.
type PostInput struct {
	Title         string
	Description   string
	Organisation  string
	Attachment    string
	Event         bool
	Donation      bool
	EventLocation string
	EventCapacity string
	EventTime     string
	DonationGoal  string
	CaptchaToken  string
}

// Draft is a validated post ready to be persisted.
type Draft struct {
	Title        string
	Description  string
	Organisation *models.Organisation
	Body         Body
}

// Post materialises the draft as a storable post.
func (d *Draft) Post(id, ownerID string) *models.Post {
	post := &models.Post{
		ID:             id,
		OwnerID:        ownerID,
		OrganisationID: d.Organisation.ID,
		Title:          d.Title,
		Description:    d.Description,
		Kind:           d.Body.Kind(),
	}
	switch b := d.Body.(type) {
	case EventBody:
		post.Event = &models.Event{PostID: id, Location: b.Location, Capacity: b.Capacity, Time: b.Time}
	case DonationBody:
		post.Donation = &models.Donation{PostID: id, Goal: b.Goal}
	}
	return post
}

// OrganisationLookup resolves approved organisations.
type OrganisationLookup interface {
	Approved(ctx context.Context, id string) (*models.Organisation, error)
}

// Builder validates and escapes post input.
type Builder struct {
	Orgs OrganisationLookup
	Now  func() time.Time
}

// NewBuilder creates a Builder using the wall clock.
func NewBuilder(orgs OrganisationLookup) *Builder {
	return &Builder{Orgs: orgs, Now: time.Now}
}

// Build validates a create request.
func (b *Builder) Build(ctx context.Context, in PostInput) (*Draft, error) {
	title, err := requiredText(in.Title, "title", MaxTextLen)
	if err != nil {
		return nil, err
	}
	description, err := requiredText(in.Description, "description", MaxLongTextLen)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Organisation) == "" {
		return nil, MissingField("Missing organisation")
	}
	if !IsID(in.Organisation) {
		return nil, Invalid("Invalid organisation id")
	}
	org, err := b.Orgs.Approved(ctx, strings.TrimSpace(in.Organisation))
	if err != nil {
		return nil, err
	}

	if in.Event && in.Donation {
		return nil, Invalid("A post cannot be both event and donation")
	}

	var body Body = Discussion{}
	switch {
	case in.Event:
		ev := EventBody{}
		if ev.Location, err = requiredLocation(in.EventLocation); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.EventCapacity) == "" {
			return nil, MissingField("Missing event capacity")
		}
		if ev.Capacity, err = parseCapacity(in.EventCapacity); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.EventTime) == "" {
			return nil, MissingField("Missing time")
		}
		if ev.Time, err = b.parseEventTime(in.EventTime); err != nil {
			return nil, err
		}
		body = ev
	case in.Donation:
		if strings.TrimSpace(in.DonationGoal) == "" {
			return nil, MissingField("Missing donation goal")
		}
		goal, err := parseGoal(in.DonationGoal)
		if err != nil {
			return nil, err
		}
		body = DonationBody{Goal: goal}
	}

	return &Draft{Title: title, Description: description, Organisation: org, Body: body}, nil
}

// ApplyEdit validates the supplied fields of an edit request and writes them onto post.
// The sub-record kind can not change; only fields of the existing one can be edited.
func (b *Builder) ApplyEdit(post *models.Post, in PostInput) error {
	if in.Title != "" {
		title, err := boundedText(in.Title, "title", MaxTextLen)
		if err != nil {
			return err
		}
		post.Title = title
	}
	if in.Description != "" {
		description, err := boundedText(in.Description, "description", MaxLongTextLen)
		if err != nil {
			return err
		}
		post.Description = description
	}

	if in.Event && in.Donation {
		return Invalid("A post cannot be both event and donation")
	}

	if in.Event {
		if post.Kind != models.PostKindEvent || post.Event == nil {
			return Invalid("Post has no event")
		}
		if in.EventLocation != "" {
			location, err := boundedText(in.EventLocation, "location", MaxTextLen)
			if err != nil {
				return err
			}
			post.Event.Location = location
		}
		if in.EventCapacity != "" {
			capacity, err := parseCapacity(in.EventCapacity)
			if err != nil {
				return err
			}
			post.Event.Capacity = capacity
		}
		if in.EventTime != "" {
			t, err := b.parseEventTime(in.EventTime)
			if err != nil {
				return err
			}
			post.Event.Time = t
		}
	}

	if in.Donation {
		if post.Kind != models.PostKindDonation || post.Donation == nil {
			return Invalid("Post has no donation")
		}
		if in.DonationGoal != "" {
			goal, err := parseGoal(in.DonationGoal)
			if err != nil {
				return err
			}
			post.Donation.Goal = goal
		}
	}
	return nil
}

// IsID reports whether s is a well formed entity id.
func IsID(s string) bool {
	return validate.Var(strings.TrimSpace(s), "required,uuid") == nil
}

func requiredText(raw, field string, max int) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", MissingField("Missing " + field)
	}
	s, err := boundedText(raw, field, max)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", MissingField("Missing " + field)
	}
	return s, nil
}

func requiredLocation(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", MissingField("Missing event location")
	}
	s, err := boundedText(raw, "location", MaxTextLen)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", MissingField("Missing event location")
	}
	return s, nil
}

func boundedText(raw, field string, max int) (string, error) {
	s := utils.EscapeText(strings.TrimSpace(raw))
	if utf8.RuneCountInString(s) > max {
		return "", Invalid("Length of '" + field + "' too long (Max: " + strconv.Itoa(max) + " characters)")
	}
	return s, nil
}

func parseCapacity(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if !numericPattern.MatchString(s) {
		return 0, Invalid("Invalid capacity")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil || n <= 0 || n >= maxCapacity {
		return 0, Invalid("Capacity out of range (1 to 99999)")
	}
	return n, nil
}

func parseGoal(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !numericPattern.MatchString(s) {
		return "", Invalid("Invalid goal")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f >= maxGoal {
		return "", Invalid("Goal out of range (1 to 10000000)")
	}
	if !currencyPattern.MatchString(s) {
		return "", Invalid("Invalid goal currency format")
	}
	return s, nil
}

// parseEventTime reads a UTC+8 wall clock value written without offset. It is
// stored as if it were UTC and has to lie more than one day past the current
// UTC+8 wall clock.
func (b *Builder) parseEventTime(raw string) (time.Time, error) {
	t, err := time.Parse(EventTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, Invalid("Invalid date format")
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	earliest := now().UTC().Add(eventZoneOffset).Add(eventMinLead)
	if !t.After(earliest) {
		return time.Time{}, Invalid("Time must be at least 1 day in the future")
	}
	return t, nil
}
