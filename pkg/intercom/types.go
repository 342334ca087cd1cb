package intercom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ID is an Intercom identifier. The API returns some ids as strings and
// others (admin_assignee_id, team ids) as JSON numbers; both decode to ID.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// PageCursor carries the listing pagination parameters.
// A nil *PageCursor means there are no more pages.
type PageCursor struct {
	PerPage       int
	StartingAfter string
}

// Params renders the cursor as listing query parameters.
func (c PageCursor) Params() url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.PerPage))
	if c.StartingAfter != "" {
		q.Set("starting_after", c.StartingAfter)
	}
	return q
}

// Next returns the cursor for the page after this one. PerPage is preserved.
func (c PageCursor) Next(startingAfter string) *PageCursor {
	return &PageCursor{
		PerPage:       c.PerPage,
		StartingAfter: startingAfter,
	}
}

// ConversationRef is the minimal conversation record returned by the listing endpoint.
type ConversationRef struct {
	ID ID `json:"id"`
}

// Pages is the pagination block of a listing response.
type Pages struct {
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	TotalPages int       `json:"total_pages"`
	Next       *NextPage `json:"next"`
}

// NextPage points at the following page. Absent on the last page.
type NextPage struct {
	Page          int    `json:"page"`
	StartingAfter string `json:"starting_after"`
}

// ConversationPage is one decoded page of the conversations listing.
type ConversationPage struct {
	Conversations []ConversationRef `json:"conversations"`
	TotalCount    int               `json:"total_count"`
	Pages         Pages             `json:"pages"`

	// Header holds the listing response headers, including the rate limit quota.
	Header http.Header `json:"-"`
}

// NextCursor returns the starting_after token of the next page, or "" if
// this is the last page.
func (p *ConversationPage) NextCursor() string {
	if p.Pages.Next == nil {
		return ""
	}
	return p.Pages.Next.StartingAfter
}

// HasNext reports whether the response announced a following page.
func (p *ConversationPage) HasNext() bool {
	return p.Pages.Next != nil
}

// Author identifies who wrote a message.
type Author struct {
	Type  string `json:"type"`
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Source is the opening message of a conversation.
type Source struct {
	Type    string `json:"type"`
	ID      ID     `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Author  Author `json:"author"`
}

// ConversationPart is one reply within a conversation thread.
type ConversationPart struct {
	ID        ID     `json:"id"`
	PartType  string `json:"part_type"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
	Author    Author `json:"author"`
}

// ConversationParts wraps the ordered reply list.
type ConversationParts struct {
	ConversationParts []ConversationPart `json:"conversation_parts"`
	TotalCount        int                `json:"total_count"`
}

// ConversationDetail is the full record returned by the detail endpoint.
type ConversationDetail struct {
	ID                ID                `json:"id"`
	CreatedAt         int64             `json:"created_at"`
	UpdatedAt         int64             `json:"updated_at"`
	State             string            `json:"state"`
	AdminAssigneeID   *ID               `json:"admin_assignee_id"`
	Source            Source            `json:"source"`
	ConversationParts ConversationParts `json:"conversation_parts"`
}

// Parts returns the replies in their original order.
func (d *ConversationDetail) Parts() []ConversationPart {
	return d.ConversationParts.ConversationParts
}

// errorList is the Intercom error envelope.
type errorList struct {
	Type   string `json:"type"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}
