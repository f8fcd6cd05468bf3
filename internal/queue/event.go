// Package queue defines message payloads exchanged over the message broker
// and the publisher that sends them.
package queue

import "time"

// DocumentEventsQueue is the durable queue document events are routed to.
const DocumentEventsQueue = "document.events"

// Event types.
const (
    EventDocumentUploaded = "document.uploaded"
    EventDocumentDeleted  = "document.deleted"
)

// DocumentEvent is published after a document is stored or removed.  It
// carries enough for downstream consumers (audit, indexing) to act without
// querying the primary database.
type DocumentEvent struct {
    Type        string `json:"type"`
    DocumentID  string `json:"document_id"`
    UserID      string `json:"user_id"`
    StorageKey  string `json:"storage_key"`
    Size        int64  `json:"size"`
    BlobDeleted *bool  `json:"blob_deleted,omitempty"`
    OccurredAt  string `json:"occurred_at"`
}

// NewDocumentEvent stamps an event with the current UTC time.
func NewDocumentEvent(typ, documentID, userID, key string, size int64) DocumentEvent {
    return DocumentEvent{
        Type:       typ,
        DocumentID: documentID,
        UserID:     userID,
        StorageKey: key,
        Size:       size,
        OccurredAt: time.Now().UTC().Format(time.RFC3339),
    }
}
