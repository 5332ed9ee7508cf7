package notify

import (
	"context"
	"fmt"
	"time"
)

// Event names carried on the wire. Clients subscribe by name.
const (
	EventNewPromptSubmitted = "new_prompt_submitted"
	EventPromptApproved     = "promptApproved"
	EventPromptRejected     = "promptRejected"
	EventPromptProcessed    = "promptProcessed"
	EventImageGenerated     = "imageGenerated"
	EventImageApproved      = "imageApproved"
	EventImageRejected      = "imageRejected"
	EventBatchCompleted     = "batchProcessingCompleted"
)

// Recipient addresses an event to one connected user or to everyone.
type Recipient struct {
	UserID    uint64
	Broadcast bool
}

func ToUser(id uint64) Recipient { return Recipient{UserID: id} }
func Everyone() Recipient        { return Recipient{Broadcast: true} }

// RoutingKey maps a recipient onto the pub/sub topic space.
func (r Recipient) RoutingKey() string {
	if r.Broadcast {
		return "broadcast"
	}
	return fmt.Sprintf("user.%d", r.UserID)
}

type Event struct {
	Name    string    `json:"event"`
	To      Recipient `json:"-"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// Publisher delivers events to the real-time channel. Implementations must
// tolerate losing events; fan-out is best-effort and never blocks the
// approval pipeline.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Payloads mirror what the connected clients render.

type NewPromptSubmitted struct {
	PromptID       string `json:"promptId"`
	StudentID      uint64 `json:"studentId"`
	StudentName    string `json:"studentName"`
	ContentPreview string `json:"content"`
}

type PromptApproved struct {
	PromptID  string `json:"promptId"`
	StudentID uint64 `json:"studentId"`
}

type PromptRejected struct {
	PromptID        string `json:"promptId"`
	StudentID       uint64 `json:"studentId"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

type PromptProcessed struct {
	PromptID  string `json:"promptId"`
	StudentID uint64 `json:"studentId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type ImageGenerated struct {
	ImageID       string    `json:"imageId"`
	Path          string    `json:"path"`
	IsExternalURL bool      `json:"isExternalUrl"`
	PromptID      string    `json:"promptId"`
	PromptContent string    `json:"prompt"`
	StudentID     uint64    `json:"studentId"`
	StudentName   string    `json:"studentName"`
	SafetyLevel   string    `json:"safetyLevel"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ImageApproved struct {
	ImageID   string `json:"imageId"`
	StudentID uint64 `json:"studentId"`
	ImageURL  string `json:"imageUrl"`
	PromptID  string `json:"promptId"`
}

type ImageRejected struct {
	ImageID         string `json:"imageId"`
	StudentID       uint64 `json:"studentId"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

type BatchOutcome struct {
	PromptID string `json:"promptId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type BatchCompleted struct {
	TeacherID      uint64         `json:"teacherId"`
	TotalProcessed int            `json:"totalProcessed"`
	SuccessCount   int            `json:"successCount"`
	ErrorCount     int            `json:"errorCount"`
	Details        []BatchOutcome `json:"details"`
}
