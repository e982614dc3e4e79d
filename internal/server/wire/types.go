package wire

// CreateCommunityRequest is the request body for POST /v1/communities.
type CreateCommunityRequest struct {
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id"`
	Ledger      []byte `json:"ledger,omitempty"`
	KeyMaterial []byte `json:"key_material"`
}

// ConnectionResponse describes one membership connection.
type ConnectionResponse struct {
	ConnectionID string `json:"connection_id"`
	TeamID       string `json:"team_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
}

// CreateCommunityResponse is the payload for POST /v1/communities.
type CreateCommunityResponse struct {
	TeamID     string              `json:"team_id"`
	Connection *ConnectionResponse `json:"connection,omitempty"`
}

// StartConnectionRequest is the request body for
// POST /v1/communities/{team_id}/connections.
type StartConnectionRequest struct {
	UserID string `json:"user_id"`
}

// UserStatus is one user's connection state in a community snapshot.
type UserStatus struct {
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	ConnectedAt int64  `json:"connected_at"`
}

// CommunityStatusResponse is the payload for GET /v1/communities/{team_id}.
type CommunityStatusResponse struct {
	TeamID          string       `json:"team_id"`
	ConnectionCount int          `json:"connection_count"`
	IdleSince       int64        `json:"idle_since,omitempty"`
	Users           []UserStatus `json:"users,omitempty"`
}

// SubmitEntryRequest is the request body for POST /v1/entries.
type SubmitEntryRequest struct {
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id"`
	ContentHash string `json:"content_hash"`
	PartitionID string `json:"partition_id,omitempty"`
	Entry       []byte `json:"entry"`
}

// SubmitEntryResponse is the payload for POST /v1/entries.
type SubmitEntryResponse struct {
	ContentHash string `json:"content_hash"`
	Duplicate   bool   `json:"duplicate"`
	ReceivedAt  int64  `json:"received_at"`
}

// PullEntriesRequest is the request body for POST /v1/entries/pull.
type PullEntriesRequest struct {
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id"`
	StartTs     int64  `json:"start_ts"`
	EndTs       int64  `json:"end_ts,omitempty"`
	PartitionID string `json:"partition_id,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Cursor      string `json:"cursor,omitempty"`
}

// PullEntriesResponse is the payload for POST /v1/entries/pull.
type PullEntriesResponse struct {
	Entries     [][]byte `json:"entries"`
	Cursor      string   `json:"cursor,omitempty"`
	HasNextPage bool     `json:"has_next_page"`
}

// MembershipMessageRequest is the request body for
// POST /v1/membership/messages.
type MembershipMessageRequest struct {
	TeamID  string `json:"team_id"`
	UserID  string `json:"user_id"`
	Message []byte `json:"message"`
}

// EventFrame is the payload of a server-initiated envelope on the event
// stream.
type EventFrame struct {
	Kind        string `json:"kind"`
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	PartitionID string `json:"partition_id,omitempty"`
	Payload     []byte `json:"payload"`
}
