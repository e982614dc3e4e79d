package service

import (
	"context"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
)

// PullEntriesRequest contains parameters for reading a slice of the
// community log.
type PullEntriesRequest struct {
	TeamID      string // Required
	UserID      string // Required
	TransportID string // Required

	// StartTs is the inclusive lower receive-time bound (Unix
	// milliseconds). Required and positive.
	StartTs int64

	// EndTs is the exclusive upper bound; zero means open-ended.
	EndTs int64

	// PartitionID restricts the read to one sub-log when non-empty.
	PartitionID string

	// ContentHash fetches a single known entry when non-empty.
	ContentHash string

	// Limit caps the number of entries returned; zero means the byte
	// budget alone bounds the response.
	Limit int

	// Cursor resumes a prior pull; empty starts at StartTs.
	Cursor string
}

// PullEntriesResponse is one page of raw entry payloads in ascending
// receive order.
type PullEntriesResponse struct {
	Entries     [][]byte
	Cursor      string
	HasNextPage bool
}

// Pull reads entries matching the request, bounded by the response byte
// budget so the result always fits one transport message. When more
// matching entries exist, HasNextPage is true and Cursor resumes the
// scan exactly where it stopped.
//
// Authorization happens once, up front. A membership revocation or
// disconnect that lands mid-scan does not abort the pull; the next pull
// request fails instead.
func (s *SyncService) Pull(ctx context.Context, req *PullEntriesRequest) (*PullEntriesResponse, error) {
	// 1. The caller must be a joined member on this transport.
	if _, err := s.authorize(ctx, req.TeamID, req.UserID, req.TransportID); err != nil {
		return nil, err
	}

	// 2. Validate the window and cursor.
	if req.StartTs <= 0 {
		return nil, domain.ErrMissingArgument.WithDetails("start_ts is required")
	}
	filter := domain.EntryFilter{
		StartTs:     req.StartTs,
		EndTs:       req.EndTs,
		PartitionID: req.PartitionID,
		ContentHash: req.ContentHash,
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	cur, err := domain.DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	// 3. Scan forward page by page until the byte budget, the caller's
	// limit, or the log end stops us.
	budget := int(float64(s.cfg.MaxMessageSize) * s.cfg.ByteBudgetFraction)
	used := 0
	hasNext := false
	var entries [][]byte

scan:
	for {
		page, err := s.logs.QueryPage(ctx, req.TeamID, filter, cur, s.cfg.PageSize)
		if err != nil {
			return nil, err
		}

		for i, row := range page.Rows {
			cost := len(row.Entry) + perEntryOverhead

			// A row that would blow the budget stays for the next pull.
			// The first row always ships, so an oversized entry cannot
			// wedge the scan.
			if len(entries) > 0 && used+cost > budget {
				hasNext = true
				break scan
			}

			entries = append(entries, row.Entry)
			used += cost
			cur = domain.Cursor{ReceivedAt: row.ReceivedAt, ID: row.ID}

			if req.Limit > 0 && len(entries) >= req.Limit {
				hasNext = page.HasMore || i < len(page.Rows)-1
				break scan
			}
		}

		if !page.HasMore {
			break
		}
		cur = page.NextCursor
	}

	resp := &PullEntriesResponse{
		Entries:     entries,
		HasNextPage: hasNext,
	}
	if hasNext {
		resp.Cursor = cur.Encode()
	}

	s.metrics.PullRequests.Inc()
	s.metrics.PullEntries.Add(float64(len(entries)))
	s.logger.Debug("entries pulled",
		"team_id", req.TeamID,
		"user_id", req.UserID,
		"count", len(entries),
		"bytes", used,
		"has_next", hasNext)
	return resp, nil
}
