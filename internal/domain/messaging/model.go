package messaging

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
)

const (
	ConversationsKey = "patientConversations"
	MessagesKey      = "patientMessages"
	NotificationsKey = "userNotifications"
)

// previewLen bounds the last-message preview kept on a conversation.
const previewLen = 80

// A conversation has two sides: the patient and one staff member.
const (
	SidePatient = "patient"
	SideStaff   = "staff"
)

type Conversation struct {
	ID               string     `json:"id"`
	PatientID        patient.ID `json:"patientId"`
	PatientName      string     `json:"patientName"`
	StaffID          staff.ID   `json:"staffId"`
	StaffName        string     `json:"staffName"`
	StaffRole        string     `json:"staffRole"`
	Subject          string     `json:"subject"`
	LastMessage      string     `json:"lastMessage,omitempty"`
	LastMessageAt    string     `json:"lastMessageAt,omitempty"`
	UnreadForPatient int        `json:"unreadForPatient"`
	UnreadForStaff   int        `json:"unreadForStaff"`
	Status           string     `json:"status"`
	CreatedAt        string     `json:"createdAt"`
}

func (c Conversation) RecordID() string { return c.ID }

func (c Conversation) Validate() error {
	if c.PatientID == "" || c.StaffID == "" {
		return fmt.Errorf("patientId and staffId are required")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if c.Status != "open" && c.Status != "closed" {
		return fmt.Errorf("status must be open or closed")
	}
	if c.UnreadForPatient < 0 || c.UnreadForStaff < 0 {
		return fmt.Errorf("unread counts must not be negative")
	}
	return nil
}

// Participant reports whether userID is one of the two sides, and which.
func (c Conversation) Participant(userID string) (string, bool) {
	switch userID {
	case string(c.PatientID):
		return SidePatient, true
	case string(c.StaffID):
		return SideStaff, true
	}
	return "", false
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	SenderSide     string `json:"senderRole"`
	Content        string `json:"content"`
	SentAt         string `json:"sentAt"`
	Read           bool   `json:"read"`
}

func (m Message) RecordID() string { return m.ID }

func (m Message) Validate() error {
	if m.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if m.SenderSide != SidePatient && m.SenderSide != SideStaff {
		return fmt.Errorf("senderRole must be patient or staff")
	}
	return nil
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

func (n Notification) RecordID() string { return n.ID }

func (n Notification) Validate() error {
	if n.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("title is required")
	}
	switch n.Type {
	case "info", "success", "warning", "error":
	default:
		return fmt.Errorf("type %q is not valid", n.Type)
	}
	return nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen-3]) + "..."
}
