package domain

import (
	"strings"
	"time"
)

// Community is the persisted record for one group: its identifier and the
// serialized membership ledger blob. The live registry entry that owns the
// connection set wraps this record; the record itself stays a plain value so
// stores can persist and clone it freely.
type Community struct {
	// TeamID is the community identifier, the primary key.
	TeamID string `json:"team_id"`

	// Ledger is the serialized membership ledger (sigchain) blob. The
	// bytes are opaque to this server; only the membership engine can
	// interpret them.
	Ledger []byte `json:"ledger"`

	// CreatedAt is the record creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the timestamp of the last ledger save (Unix milliseconds).
	UpdatedAt int64 `json:"updated_at"`
}

// NewCommunity creates a community record with the given ledger blob.
func NewCommunity(teamID string, ledger []byte) (*Community, error) {
	now := time.Now().UnixMilli()
	c := &Community{
		TeamID:    teamID,
		Ledger:    ledger,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate validates the community fields against constraints.
// Returns a DomainError with code SM-COMM-4001 if validation fails.
func (c *Community) Validate() error {
	var violations []string

	if c.TeamID == "" {
		violations = append(violations, "team_id is required")
	}
	if len(c.TeamID) > MaxTeamIDLength {
		violations = append(violations, "team_id exceeds 128 characters")
	}
	// Team IDs become storage key segments; the separator is reserved.
	if strings.ContainsAny(c.TeamID, "/\x00") {
		violations = append(violations, "team_id contains reserved characters")
	}
	if len(c.Ledger) == 0 {
		violations = append(violations, "ledger is required")
	}

	if len(violations) > 0 {
		return ErrCommunityValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// SetLedger replaces the ledger blob and bumps UpdatedAt.
func (c *Community) SetLedger(ledger []byte) {
	c.Ledger = ledger
	c.UpdatedAt = time.Now().UnixMilli()
}

// Clone creates a deep copy of the community record.
func (c *Community) Clone() *Community {
	clone := *c
	if c.Ledger != nil {
		clone.Ledger = make([]byte, len(c.Ledger))
		copy(clone.Ledger, c.Ledger)
	}
	return &clone
}
