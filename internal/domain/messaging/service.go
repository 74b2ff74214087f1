package messaging

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
}

type Staff interface {
	User(id staff.ID) (staff.User, error)
}

type Collections struct {
	Conversations *collection.Collection[Conversation]
	Messages      *collection.Collection[Message]
	Notifications *collection.Collection[Notification]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	convs, err := collection.Open[Conversation](ctx, reg, ConversationsKey, nil)
	if err != nil {
		return nil, err
	}
	msgs, err := collection.Open[Message](ctx, reg, MessagesKey, nil)
	if err != nil {
		return nil, err
	}
	notes, err := collection.Open[Notification](ctx, reg, NotificationsKey, nil)
	if err != nil {
		return nil, err
	}
	return &Collections{Conversations: convs, Messages: msgs, Notifications: notes}, nil
}

type Service struct {
	convs    *collection.Collection[Conversation]
	msgs     *collection.Collection[Message]
	notes    *collection.Collection[Notification]
	patients Patients
	staff    Staff
	clock    clock.Clock
}

func NewService(c *Collections, patients Patients, staff Staff, clk clock.Clock) *Service {
	c.Conversations.SetValidator(Conversation.Validate)
	c.Messages.SetValidator(Message.Validate)
	c.Notifications.SetValidator(Notification.Validate)
	return &Service{
		convs:    c.Conversations,
		msgs:     c.Messages,
		notes:    c.Notifications,
		patients: patients,
		staff:    staff,
		clock:    clk,
	}
}

func (s *Service) stamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339)
}

// -- Conversations --

// StartConversation opens a thread between a patient and a staff member.
func (s *Service) StartConversation(ctx context.Context, c Conversation) (Conversation, error) {
	p, err := s.patients.Patient(c.PatientID)
	if err != nil {
		return Conversation{}, err
	}
	u, err := s.staff.User(c.StaffID)
	if err != nil {
		return Conversation{}, err
	}
	if c.ID == "" {
		c.ID = collection.NewID("conv")
	}
	c.PatientName = p.Name
	c.StaffName = u.Name
	c.StaffRole = u.Role
	c.Status = "open"
	c.CreatedAt = s.stamp()
	c.LastMessage, c.LastMessageAt = "", ""
	c.UnreadForPatient, c.UnreadForStaff = 0, 0
	if err := s.convs.Add(ctx, c); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (s *Service) Conversation(id string) (Conversation, error) {
	c, ok := s.convs.Get(id)
	if !ok {
		return Conversation{}, collection.NotFoundf("conversation %s not found", id)
	}
	return c, nil
}

// ConversationsFor lists the threads userID takes part in, latest activity
// first.
func (s *Service) ConversationsFor(userID string) []Conversation {
	out := s.convs.Find(func(c Conversation) bool {
		_, ok := c.Participant(userID)
		return ok
	})
	sort.SliceStable(out, func(i, j int) bool { return activity(out[i]) > activity(out[j]) })
	if out == nil {
		out = []Conversation{}
	}
	return out
}

func activity(c Conversation) string {
	if c.LastMessageAt != "" {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// Send appends a message from senderID. The conversation preview moves to
// the new message and the other side's unread count grows by one.
func (s *Service) Send(ctx context.Context, convID, senderID, content string) (Message, error) {
	c, err := s.Conversation(convID)
	if err != nil {
		return Message{}, err
	}
	side, ok := c.Participant(senderID)
	if !ok {
		return Message{}, collection.Conflictf("%s is not part of conversation %s", senderID, convID)
	}
	m := Message{
		ID:             collection.NewID("msg"),
		ConversationID: c.ID,
		SenderID:       senderID,
		SenderSide:     side,
		Content:        content,
		SentAt:         s.stamp(),
	}
	if side == SidePatient {
		m.SenderName = c.PatientName
	} else {
		m.SenderName = c.StaffName
	}
	if err := m.Validate(); err != nil {
		return Message{}, collection.Invalid(err)
	}

	// Claim the conversation first so a closed thread takes no messages.
	_, found, err := s.convs.Mutate(ctx, convID, func(c *Conversation) error {
		if c.Status != "open" {
			return collection.Conflictf("conversation is closed")
		}
		c.LastMessage = preview(content)
		c.LastMessageAt = m.SentAt
		if side == SidePatient {
			c.UnreadForStaff++
		} else {
			c.UnreadForPatient++
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	if !found {
		return Message{}, collection.NotFoundf("conversation %s not found", convID)
	}
	if err := s.msgs.Add(ctx, m); err != nil {
		return Message{}, err
	}

	recipient, title := string(c.StaffID), "New message from "+c.PatientName
	if side == SideStaff {
		recipient, title = string(c.PatientID), "New message from "+c.StaffName
	}
	if _, err := s.Notify(ctx, Notification{UserID: recipient, Title: title, Message: preview(content), Link: "/conversations/" + c.ID}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("conversation_id", c.ID).Msg("message notification not stored")
	}
	return m, nil
}

// Messages returns the thread in send order.
func (s *Service) Messages(convID string) []Message {
	out := s.msgs.Find(func(m Message) bool { return m.ConversationID == convID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt < out[j].SentAt })
	if out == nil {
		out = []Message{}
	}
	return out
}

// MarkRead marks everything the other side sent as read by readerID and
// clears the reader's unread count. It returns the number of messages
// marked.
func (s *Service) MarkRead(ctx context.Context, convID, readerID string) (int, error) {
	c, err := s.Conversation(convID)
	if err != nil {
		return 0, err
	}
	side, ok := c.Participant(readerID)
	if !ok {
		return 0, collection.Conflictf("%s is not part of conversation %s", readerID, convID)
	}
	n := 0
	err = s.msgs.Apply(ctx, func(cur []Message) ([]Message, error) {
		for i := range cur {
			if cur[i].ConversationID == convID && cur[i].SenderSide != side && !cur[i].Read {
				cur[i].Read = true
				n++
			}
		}
		if n == 0 {
			return nil, nil
		}
		return cur, nil
	})
	if err != nil {
		return 0, err
	}
	_, _, err = s.convs.Mutate(ctx, convID, func(c *Conversation) error {
		if side == SidePatient {
			c.UnreadForPatient = 0
		} else {
			c.UnreadForStaff = 0
		}
		return nil
	})
	return n, err
}

// UpdateConversation renames a thread. Participants, counters and status
// follow the messages sent on it.
func (s *Service) UpdateConversation(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Conversation, bool, error) {
	if err := collection.Protected(partial, "patientId", "patientName", "staffId", "staffName", "staffRole",
		"lastMessage", "lastMessageAt", "unreadForPatient", "unreadForStaff", "status", "createdAt"); err != nil {
		return Conversation{}, false, err
	}
	return s.convs.Update(ctx, id, partial, opts...)
}

func (s *Service) Close(ctx context.Context, convID string) (Conversation, error) {
	c, found, err := s.convs.Mutate(ctx, convID, func(c *Conversation) error {
		if c.Status == "closed" {
			return collection.Conflictf("conversation is already closed")
		}
		c.Status = "closed"
		return nil
	})
	if err != nil {
		return Conversation{}, err
	}
	if !found {
		return Conversation{}, collection.NotFoundf("conversation %s not found", convID)
	}
	return c, nil
}

// -- Notifications --

func (s *Service) Notify(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = collection.NewID("ntf")
	}
	if n.Type == "" {
		n.Type = "info"
	}
	n.Read = false
	n.CreatedAt = s.stamp()
	if err := s.notes.Add(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *Service) UpdateNotification(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Notification, bool, error) {
	if err := collection.Protected(partial, "userId", "createdAt"); err != nil {
		return Notification{}, false, err
	}
	return s.notes.Update(ctx, id, partial, opts...)
}

// Notifications lists userID's notifications, newest first.
func (s *Service) Notifications(userID string, unreadOnly bool) []Notification {
	out := s.notes.Find(func(n Notification) bool {
		return n.UserID == userID && !(unreadOnly && n.Read)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if out == nil {
		out = []Notification{}
	}
	return out
}

// MarkNotificationRead marks one of userID's notifications read.
func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) (Notification, error) {
	n, found, err := s.notes.Mutate(ctx, id, func(n *Notification) error {
		if n.UserID != userID {
			return fmt.Errorf("%w: notification %s", collection.ErrNotFound, id)
		}
		n.Read = true
		return nil
	})
	if err != nil {
		return Notification{}, err
	}
	if !found {
		return Notification{}, collection.NotFoundf("notification %s not found", id)
	}
	return n, nil
}

// MarkAllRead marks every unread notification of userID in one write and
// returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n := 0
	err := s.notes.Apply(ctx, func(cur []Notification) ([]Notification, error) {
		for i := range cur {
			if cur[i].UserID == userID && !cur[i].Read {
				cur[i].Read = true
				n++
			}
		}
		if n == 0 {
			return nil, nil
		}
		return cur, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
