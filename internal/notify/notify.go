// Package notify pushes processing events to connected users.
package notify

// Event types sent over the push channel.
const (
	EventDocumentCompleted = "document_completed"
	EventDocumentFailed    = "document_failed"
)

// Event is one push message. It is serialized as a JSON object.
type Event struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Message    string `json:"message"`
}

// DocumentCompleted builds the event sent when a document is ready for review.
func DocumentCompleted(documentID, filename string) Event {
	return Event{
		Type:       EventDocumentCompleted,
		DocumentID: documentID,
		Filename:   filename,
		Message:    "Your bank statement is ready for review!",
	}
}

// DocumentFailed builds the event sent when processing ended in failure.
func DocumentFailed(documentID, filename, reason string) Event {
	return Event{
		Type:       EventDocumentFailed,
		DocumentID: documentID,
		Filename:   filename,
		Message:    reason,
	}
}

// Publisher delivers an event to every live connection of a user.
// Delivery is fire-and-forget; users with no connection miss the event.
type Publisher interface {
	Publish(userID string, event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, Event) {}
