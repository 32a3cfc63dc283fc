package docker

import (
	"fmt"

	"github.com/auto-dns/traefik-cname-sync/internal/domain"
)

// UnsupportedEventTypeError marks a docker event that does not bear on
// container liveness, e.g. pause or exec.
type UnsupportedEventTypeError struct {
	ContainerId string
	EventType   domain.EventType
}

func NewUnsupportedEventTypeError(containerId string, eventType domain.EventType) *UnsupportedEventTypeError {
	return &UnsupportedEventTypeError{ContainerId: containerId, EventType: eventType}
}

func (e *UnsupportedEventTypeError) Error() string {
	return fmt.Sprintf("unsupported docker event %q for container %s", e.EventType, domain.ShortID(e.ContainerId))
}
