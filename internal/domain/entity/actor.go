package entity

import (
	"strings"
	"time"
)

// Actor is a directory entry of the built-in identity provider
type Actor struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           Role      `json:"role"`
	OrganizationID string    `json:"organizationId"`
	LarkOpenID     string    `json:"larkOpenId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Identity is what the identity provider resolves an actor id to
type Identity struct {
	ActorID        string
	Role           Role
	OrganizationID string
	DisplayName    string
	LarkOpenID     string
}

// Identity projects the actor onto its authorization attributes
func (a *Actor) Identity() *Identity {
	return &Identity{
		ActorID:        a.ID,
		Role:           a.Role,
		OrganizationID: a.OrganizationID,
		DisplayName:    strings.TrimSpace(a.FirstName + " " + a.LastName),
		LarkOpenID:     a.LarkOpenID,
	}
}
