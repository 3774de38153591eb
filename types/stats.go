package types

import (
	"encoding/json"

	"github.com/fatih/structs"
)

// validTags encodes valid struct tags allowing for the control of the
// marshalling of Stats.
var validTags = map[string]struct{}{
	// The lean tag only keeps the request lifecycle counters, which is what
	// health checks care about.
	"lean": {},
}

// Stats is a point in time snapshot of an engine. The struct tags control
// what makes it into the marshalled output depending on Verbosity.
type Stats struct {
	Verbosity string `structs:"-" lean:"-"`

	PortID uint32 `structs:"portId" lean:"portId"`

	Pending              int `structs:"pending" lean:"pending"`
	PendingNotifications int `structs:"pendingNotifications" lean:"-"`
	QueuedWrites         int `structs:"queuedWrites" lean:"-"`
	BuffersAvailable     int `structs:"buffersAvailable" lean:"-"`
	BuffersTotal         int `structs:"buffersTotal" lean:"-"`

	Sent      uint64 `structs:"sent" lean:"sent"`
	Completed uint64 `structs:"completed" lean:"completed"`
	Failed    uint64 `structs:"failed" lean:"failed"`
	Expired   uint64 `structs:"expired" lean:"expired"`
	Rejected  uint64 `structs:"rejected" lean:"rejected"`

	Received             uint64 `structs:"received" lean:"-"`
	Notifications        uint64 `structs:"notifications" lean:"-"`
	NotificationsDropped uint64 `structs:"notificationsDropped" lean:"-"`
	UnknownSeq           uint64 `structs:"unknownSeq" lean:"-"`
	Malformed            uint64 `structs:"malformed" lean:"-"`
}

// MarshalJSON implements the json.Marshaler interface. The struct tag named
// by Verbosity (if valid) selects the fields to output; the default tag is
// `structs`.
func (s *Stats) MarshalJSON() ([]byte, error) {
	st := structs.New(s)

	if _, ok := validTags[s.Verbosity]; ok {
		st.TagName = s.Verbosity
	}

	return json.Marshal(st.Map())
}
