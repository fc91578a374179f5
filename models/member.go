package models

import "time"

type MemberRole string

const (
	RoleMember MemberRole = "member"
	RoleAdmin  MemberRole = "admin"
)

type PlacementStatus string

const (
	PlacementPending PlacementStatus = "pending"
	PlacementPlaced  PlacementStatus = "placed"
)

// Member is a registered distributor. Sponsor and placement fields describe two
// different relations: SponsorID is who recruited the member (immutable), while
// PlacementParentID/PlacementPosition is where the member hangs in the binary
// downline tree, which may be deeper than the sponsor once the sponsor's own
// slots are full.
type Member struct {
	ID             int        `json:"id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	IdentityHash   string     `json:"-"`
	PasswordHash   string     `json:"-"`
	Role           MemberRole `json:"role"`
	ReferralCode   string     `json:"referral_code"`
	MembershipType string     `json:"membership_type"`
	City           string     `json:"city"`
	District       string     `json:"district"`

	SponsorID         *int            `json:"sponsor_id,omitempty"`
	PlacementParentID *int            `json:"placement_parent_id,omitempty"`
	PlacementPosition *string         `json:"placement_position,omitempty"`
	PlacementStatus   PlacementStatus `json:"placement_status"`
	LeftChildID       *int            `json:"left_child_id,omitempty"`
	RightChildID      *int            `json:"right_child_id,omitempty"`

	BankName *string `json:"bank_name,omitempty"`
	IBAN     *string `json:"iban,omitempty"`

	AvatarKey *string `json:"-"`
	AvatarURL *string `json:"avatar_url,omitempty"`

	PasswordResetToken     *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Beneficiary is an heir record attached to a member's profile.
type Beneficiary struct {
	ID        int       `json:"id"`
	MemberID  int       `json:"member_id"`
	FullName  string    `json:"full_name"`
	Relation  string    `json:"relation"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Address is a saved delivery address on a member's profile.
type Address struct {
	AddressID  string    `json:"address_id"`
	Label      string    `json:"label"`
	Line       string    `json:"line"`
	City       string    `json:"city"`
	District   string    `json:"district"`
	PostalCode string    `json:"postal_code"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
