package domain

import "time"

type EventType string

const (
	EventTypeContainerDied    EventType = "die"
	EventTypeContainerStarted EventType = "start"
	EventTypeContainerStopped EventType = "stop"
)

func (et EventType) IsValid() bool {
	switch et {
	case EventTypeContainerDied,
		EventTypeContainerStarted,
		EventTypeContainerStopped:
		return true
	}
	return false
}

const ContainerStateRunning = "running"

// Container is the runtime's view of one container. Only the running/not
// running distinction and the labels drive reconciliation.
type Container struct {
	Id      string            `json:"id"`
	Name    string            `json:"name"`
	State   string            `json:"state"`
	Created time.Time         `json:"created"`
	Labels  map[string]string `json:"labels"`
}

func (c Container) Running() bool {
	return c.State == ContainerStateRunning
}

type ContainerEvent struct {
	Container Container
	EventType EventType
}

// ShortID truncates a docker container id to the 12 character form used as
// record owner.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
