package group

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("group not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationResolved = errors.New("invitation already answered")
	ErrNotMember          = errors.New("not a member of this group")
)

type Group struct {
	ID          string    `json:"id"`
	PublicID    string    `json:"publicId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

type Invitation struct {
	ID        string           `json:"id"`
	GroupID   string           `json:"groupId"`
	GroupName string           `json:"groupName"`
	InviterID string           `json:"inviterId"`
	InviteeID string           `json:"inviteeId"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

type CreateRequest struct {
	Name        string
	Description string
	OwnerID     string
	// resolved user ids, unknown usernames are already dropped
	InviteeIDs []string
}
