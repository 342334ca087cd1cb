// Package conversation turns Intercom conversation details into flat
// export records.
package conversation

import "github.com/Sternrassler/intercom-export/pkg/intercom"

// Message is one normalized message of a conversation.
type Message struct {
	AuthorID    intercom.ID `json:"author_id"`
	AuthorEmail string      `json:"author_email"`
	CreatedAt   int64       `json:"created_at"`
	Body        string      `json:"body"`
}

// NewMessage builds a Message from its named fields.
func NewMessage(authorID intercom.ID, authorEmail string, createdAt int64, body string) Message {
	return Message{
		AuthorID:    authorID,
		AuthorEmail: authorEmail,
		CreatedAt:   createdAt,
		Body:        body,
	}
}

// Participants is the fixed pair [source author, admin assignee].
// It is positional and not deduplicated; an empty slot encodes as null.
type Participants [2]*intercom.ID

// Author returns the source author slot.
func (p Participants) Author() *intercom.ID { return p[0] }

// AdminAssignee returns the admin assignee slot.
func (p Participants) AdminAssignee() *intercom.ID { return p[1] }

// Normalized is the export record for one conversation.
// Messages[0] is always the opening message.
type Normalized struct {
	ConversationID intercom.ID  `json:"conversationID"`
	Participants   Participants `json:"participants"`
	Messages       []Message    `json:"messages"`
}
