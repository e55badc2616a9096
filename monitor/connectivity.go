package monitor

import (
	"os"
	"strings"
)

type Connectivity string

const (
	ConnectivityAbsent Connectivity = ""
	Connected          Connectivity = "connected"
	Disconnected       Connectivity = "disconnected"
)

const ConnectivityFile = "disconnect_state.txt"

type ConnectivityChange int

const (
	ChangeNone ConnectivityChange = iota
	ChangeDisconnected
	ChangeReconnected
)

// DeviceProbe reports whether the monitored device is reachable.
type DeviceProbe interface {
	Present() bool
}

// PathProbe treats the device as present when its node exists.
type PathProbe struct {
	Path string
}

func (p PathProbe) Present() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}

// ConnectivityTracker persists the connected/disconnected flag across runs.
type ConnectivityTracker struct {
	Path string
}

// Load returns the stored value. A missing, unreadable or unrecognised file
// reads as absent.
func (t *ConnectivityTracker) Load() Connectivity {
	b, err := os.ReadFile(t.Path)
	if err != nil {
		return ConnectivityAbsent
	}
	switch c := Connectivity(strings.TrimSpace(string(b))); c {
	case Connected, Disconnected:
		return c
	default:
		return ConnectivityAbsent
	}
}

func (t *ConnectivityTracker) Save(c Connectivity) error {
	return writeFileAtomic(t.Path, []byte(c))
}

// Evaluate classifies the current probe result against the stored value.
// Entering the disconnected state from anything else, including a first
// run, is a disconnect; only disconnected -> present is a reconnect.
func (t *ConnectivityTracker) Evaluate(prev Connectivity, present bool) ConnectivityChange {
	if !present {
		if prev != Disconnected {
			return ChangeDisconnected
		}
		return ChangeNone
	}
	if prev == Disconnected {
		return ChangeReconnected
	}
	return ChangeNone
}
