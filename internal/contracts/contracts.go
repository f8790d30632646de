package contracts

import (
	"strings"
	"time"
)

// Routing keys carried on the events exchange. Each consumer queue binds to
// exactly one of them.
const (
	RoutingKeyPostCreated = "post.created"
	RoutingKeyPostDeleted = "post.deleted"
)

const subjectPrefix = "social.event."

// Subject maps a routing key onto the bus subject space (social.event.>).
func Subject(routingKey string) string {
	return subjectPrefix + routingKey
}

// RoutingKey recovers the routing key from a delivered subject.
func RoutingKey(subject string) string {
	return strings.TrimPrefix(subject, subjectPrefix)
}

// PostCreated is published by the post service after a post commits.
// Payload fields are identifiers and primitives only; the search indexer
// builds its projection without calling back to the post service.
type PostCreated struct {
	EventID   string    `json:"event_id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"media_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	EmittedAt time.Time `json:"emitted_at"`
}

// PostDeleted is published after a post row is removed. It carries every
// media id the cleanup consumer needs, because the post document is already
// gone and can never be re-queried.
type PostDeleted struct {
	EventID   string    `json:"event_id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	MediaIDs  []string  `json:"media_ids"`
	EmittedAt time.Time `json:"emitted_at"`
}
