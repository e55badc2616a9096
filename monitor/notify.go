package monitor

import (
	"context"
	"errors"
	"time"
)

type AlertKind string

const (
	AlertStateChange AlertKind = "state_change"
	AlertDisconnect  AlertKind = "disconnect"
	AlertReconnect   AlertKind = "reconnect"
	AlertTest        AlertKind = "test"
)

// Alert is one operator notification.
type Alert struct {
	Kind       AlertKind
	Level      string
	Device     string
	Descriptor string
	Subject    string
	Body       string
	At         time.Time
}

// Notifier delivers alerts to an operator.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

var (
	ErrNotifyAuth      = errors.New("authentication failed")
	ErrNotifyTransport = errors.New("transport failure")
)
