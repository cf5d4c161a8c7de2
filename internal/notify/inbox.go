package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// MaxInboxItems caps how many notifications the inbox keeps.
const MaxInboxItems = 50

// Subscriber is the subscription half of a Channel.
type Subscriber interface {
	Subscribe(eventType string, fn Handler) func()
}

// ReadMarker acknowledges single notifications over the channel.
type ReadMarker interface {
	MarkNotificationRead(id string) error
}

// NotificationAPI is the REST side of the inbox.
type NotificationAPI interface {
	Notifications(ctx context.Context) ([]models.NotificationMessage, error)
	MarkAllNotificationsRead(ctx context.Context) error
}

// Inbox derives a notification list and unread count from the channel.
type Inbox struct {
	marker ReadMarker
	api    NotificationAPI

	mu       sync.Mutex
	items    []models.NotificationMessage
	unread   int
	localSeq int
	onChange func(models.NotificationMessage)
	unsubs   []func()
}

// NewInbox subscribes to the inbox message types on sub. api may be nil when
// only live messages are wanted.
func NewInbox(sub Subscriber, marker ReadMarker, api NotificationAPI) *Inbox {
	in := &Inbox{marker: marker, api: api}
	for _, t := range []string{models.MsgHighRiskAlert, models.MsgProviderAssignment, models.MsgSystemNotification} {
		in.unsubs = append(in.unsubs, sub.Subscribe(t, in.add))
	}
	return in
}

// OnChange registers fn to be called with each newly added notification.
func (in *Inbox) OnChange(fn func(models.NotificationMessage)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onChange = fn
}

func (in *Inbox) add(msg models.NotificationMessage) {
	in.mu.Lock()
	if msg.ID == "" {
		in.localSeq++
		msg.ID = models.FlexID(fmt.Sprintf("local-%d", in.localSeq))
	}
	in.items = append([]models.NotificationMessage{msg}, in.items...)
	if len(in.items) > MaxInboxItems {
		in.items = in.items[:MaxInboxItems]
	}
	in.unread = countUnread(in.items)
	fn := in.onChange
	in.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
}

// Items returns the notifications, newest first.
func (in *Inbox) Items() []models.NotificationMessage {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]models.NotificationMessage(nil), in.items...)
}

// Unread returns the number of unread notifications.
func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.unread
}

// MarkRead marks one notification read locally and acknowledges it to the server.
func (in *Inbox) MarkRead(id string) error {
	in.mu.Lock()
	found := false
	for i := range in.items {
		if string(in.items[i].ID) == id {
			found = true
			if !in.items[i].IsRead {
				in.items[i].IsRead = true
				in.unread--
			}
			break
		}
	}
	in.mu.Unlock()
	if !found {
		return fmt.Errorf("notification %q not found", id)
	}
	if in.marker == nil {
		return nil
	}
	return in.marker.MarkNotificationRead(id)
}

// MarkAllRead marks every notification read on the server, then locally.
func (in *Inbox) MarkAllRead(ctx context.Context) error {
	if in.api != nil {
		if err := in.api.MarkAllNotificationsRead(ctx); err != nil {
			return fmt.Errorf("mark all notifications read: %w", err)
		}
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		in.items[i].IsRead = true
	}
	in.unread = 0
	return nil
}

// Load replaces the list with the server's copy.
func (in *Inbox) Load(ctx context.Context) error {
	if in.api == nil {
		return nil
	}
	list, err := in.api.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return sortTime(list[i]).After(sortTime(list[j]).Time)
	})
	if len(list) > MaxInboxItems {
		list = list[:MaxInboxItems]
	}
	in.mu.Lock()
	in.items = list
	in.unread = countUnread(list)
	in.mu.Unlock()
	slog.Debug("notify.Inbox.Load: loaded notifications", "count", len(list))
	return nil
}

// Close stops listening to the channel.
func (in *Inbox) Close() {
	for _, u := range in.unsubs {
		u()
	}
}

func sortTime(m models.NotificationMessage) models.Timestamp {
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return m.Timestamp
}

func countUnread(items []models.NotificationMessage) int {
	n := 0
	for _, m := range items {
		if !m.IsRead {
			n++
		}
	}
	return n
}
