package docker

import (
	"strings"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
)

func fromContainerSummary(c container.Summary) domain.Container {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return domain.Container{
		Id:      c.ID,
		Name:    name,
		State:   string(c.State),
		Created: time.Unix(c.Created, 0),
		Labels:  c.Labels,
	}
}

func fromInspectResponse(resp container.InspectResponse) domain.Container {
	var c domain.Container
	if resp.ContainerJSONBase != nil {
		c.Id = resp.ID
		c.Name = strings.TrimPrefix(resp.Name, "/")
		if created, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
			c.Created = created
		}
		if resp.State != nil {
			c.State = string(resp.State.Status)
		}
	}
	if resp.Config != nil {
		c.Labels = resp.Config.Labels
	}
	return c
}

func fromEventsMessage(msg events.Message) (domain.ContainerEvent, error) {
	ev := domain.ContainerEvent{
		Container: domain.Container{
			Id:      msg.Actor.ID,
			Name:    msg.Actor.Attributes["name"],
			Created: time.Unix(0, msg.TimeNano),
			Labels:  msg.Actor.Attributes,
		},
		EventType: domain.EventType(msg.Action),
	}
	if !ev.EventType.IsValid() {
		return domain.ContainerEvent{}, NewUnsupportedEventTypeError(msg.Actor.ID, ev.EventType)
	}
	return ev, nil
}
