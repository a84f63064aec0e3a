package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cppla/orghub/models"
)

func TestCapabilitiesFor(t *testing.T) {
	post := &models.Post{OwnerID: "owner", OrganisationID: "org-1"}

	cases := []struct {
		name    string
		account Account
		want    Capabilities
	}{
		{"owner", Account{ID: "owner"}, Capabilities{CanEdit: true, CanDeleteImage: true, CanDelete: true}},
		{"stranger", Account{ID: "someone"}, Capabilities{}},
		{"admin", Account{ID: "admin", IsAdmin: true}, Capabilities{CanDelete: true, CanPin: true}},
		{"scoped moderator", Account{ID: "mod", Moderation: []string{"org-2", "org-1"}}, Capabilities{CanDelete: true, CanPin: true}},
		{"other moderator", Account{ID: "mod", Moderation: []string{"org-2"}}, Capabilities{}},
		{"moderator without scope", Account{ID: "mod"}, Capabilities{}},
		{"anonymous", Account{}, Capabilities{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CapabilitiesFor(tc.account, post))
		})
	}
}

func TestGate(t *testing.T) {
	var gate Gate
	post := &models.Post{OwnerID: "owner", OrganisationID: "org-1"}
	owner := Account{ID: "owner"}
	admin := Account{ID: "admin", IsAdmin: true}

	assert.NoError(t, gate.CheckEdit(owner, post))
	requireDomainError(t, gate.CheckEdit(admin, post), ErrValidation, "Unauthorised to edit non-personal post")
	requireDomainError(t, gate.CheckDeleteImage(admin, post), ErrValidation, "Unauthorised to edit non-personal post")
	requireDomainError(t, gate.CheckDelete(Account{ID: "x"}, post), ErrValidation, "Unauthorised to delete non-personal post")
	assert.NoError(t, gate.CheckDelete(admin, post))

	requireDomainError(t, gate.CheckPin(owner, post, true), ErrValidation, "Insufficient access to pin post")
	assert.NoError(t, gate.CheckPin(admin, post, true))
	requireDomainError(t, gate.CheckPin(admin, post, false), ErrValidation, "Post already unpinned")
	post.IsPinned = true
	requireDomainError(t, gate.CheckPin(admin, post, true), ErrValidation, "Post already pinned")
	assert.NoError(t, gate.CheckPin(admin, post, false))
}
