package worker

// Kind enumerates the events the host delivers.
type Kind int

const (
	KindInstall Kind = iota
	KindActivate
	KindFetch
	KindPush
	KindNotificationClick
	KindSync
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindInstall:
		return "install"
	case KindActivate:
		return "activate"
	case KindFetch:
		return "fetch"
	case KindPush:
		return "push"
	case KindNotificationClick:
		return "notificationclick"
	case KindSync:
		return "sync"
	case KindMessage:
		return "message"
	}
	return "unknown"
}

// Event is one host dispatched event.
type Event interface {
	Kind() Kind
}

type InstallEvent struct{}

type ActivateEvent struct{}

type FetchEvent struct{ Request *Request }

// PushEvent carries the raw push payload.
type PushEvent struct{ Data []byte }

// NotificationClickEvent reports a click on a displayed notification.
// Action is empty when the notification body itself was clicked.
type NotificationClickEvent struct {
	Action       string       `json:"action"`
	Notification Notification `json:"notification"`
}

type SyncEvent struct{ Tag string }

// MessageEvent is a message posted by a page.
type MessageEvent struct {
	Data     Message
	ClientID string
}

func (InstallEvent) Kind() Kind           { return KindInstall }
func (ActivateEvent) Kind() Kind          { return KindActivate }
func (FetchEvent) Kind() Kind             { return KindFetch }
func (PushEvent) Kind() Kind              { return KindPush }
func (NotificationClickEvent) Kind() Kind { return KindNotificationClick }
func (SyncEvent) Kind() Kind              { return KindSync }
func (MessageEvent) Kind() Kind           { return KindMessage }
