package docker

import (
	"context"
	"errors"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/rs/zerolog"
)

// DockerGenerator streams container start/stop/die events. Events only hint
// that a tick is worth running early; the container list stays authoritative.
type DockerGenerator struct {
	logger zerolog.Logger
	cli    dockerClient
}

func NewDockerGenerator(cli dockerClient, logger zerolog.Logger) *DockerGenerator {
	return &DockerGenerator{
		logger: logger,
		cli:    cli,
	}
}

func (dg *DockerGenerator) Subscribe(ctx context.Context) (<-chan domain.ContainerEvent, error) {
	const bufferSize = 100
	out := make(chan domain.ContainerEvent, bufferSize)

	filterArgs := filters.NewArgs()
	filterArgs.Add("type", string(events.ContainerEventType))
	filterArgs.Add("event", string(domain.EventTypeContainerStarted))
	filterArgs.Add("event", string(domain.EventTypeContainerStopped))
	filterArgs.Add("event", string(domain.EventTypeContainerDied))

	options := events.ListOptions{
		Filters: filterArgs,
		Since:   time.Now().Format(time.RFC3339Nano),
	}
	eventCh, errCh := dg.cli.Events(ctx, options)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				dg.logger.Info().Msg("Docker event generator cancelled by context")
				return
			case err, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					dg.logger.Error().Err(err).Msg("Error from Docker events stream")
					return
				}
			case msg, ok := <-eventCh:
				if !ok {
					dg.logger.Info().Msg("Docker events channel closed")
					return
				}

				event, convErr := fromEventsMessage(msg)
				if convErr != nil {
					var unsupported *UnsupportedEventTypeError
					if errors.As(convErr, &unsupported) {
						dg.logger.Debug().Err(convErr).Msg("Ignoring docker event")
					} else {
						dg.logger.Error().Err(convErr).Msg("converting docker event message to container event")
					}
					continue
				}

				dg.logger.Debug().
					Str("container_id", domain.ShortID(event.Container.Id)).
					Str("container_name", event.Container.Name).
					Str("event", string(event.EventType)).
					Msg("Received Docker event")
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
