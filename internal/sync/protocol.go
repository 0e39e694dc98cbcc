// Package sync carries the document store over a websocket: the daemon
// serves get/set/delete/subscribe against its local store, and Client
// implements docstore.Store on the other end of the wire.
package sync

import (
	"github.com/oklog/ulid/v2"

	"chicklist/internal/docstore"
)

// Envelope is the wire frame. Requests and their responses share an id;
// snapshot pushes carry the id of the subscription that produced them.
type Envelope struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Collection string            `json:"collection,omitempty"`
	Key        string            `json:"key,omitempty"`
	Doc        docstore.Document `json:"doc,omitempty"`
	Merge      bool              `json:"merge,omitempty"`
	Exists     bool              `json:"exists,omitempty"`
	Snapshots  []SnapshotPayload `json:"snapshots,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// SnapshotPayload is one document inside a collection_snapshot frame.
type SnapshotPayload struct {
	Key    string            `json:"key"`
	Exists bool              `json:"exists"`
	Doc    docstore.Document `json:"doc,omitempty"`
}

const (
	TypeGet                 = "get"
	TypeSet                 = "set"
	TypeDelete              = "delete"
	TypeSubscribe           = "subscribe"
	TypeSubscribeCollection = "subscribe_collection"
	TypeUnsubscribe         = "unsubscribe"
	TypeResult              = "result"
	TypeSnapshot            = "snapshot"
	TypeCollectionSnapshot  = "collection_snapshot"
	TypeError               = "error"
)

// NewID returns a fresh envelope id. ULIDs sort by time, which makes wire
// logs readable.
func NewID() string {
	return ulid.Make().String()
}
