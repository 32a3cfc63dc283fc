package docker

import (
	"context"
	"fmt"

	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog"
)

// DockerLister reads containers from the docker daemon, stopped ones included.
type DockerLister struct {
	logger zerolog.Logger
	cli    dockerClient
}

func NewDockerLister(cli dockerClient, logger zerolog.Logger) *DockerLister {
	return &DockerLister{
		logger: logger,
		cli:    cli,
	}
}

func (dl *DockerLister) ListContainers(ctx context.Context) ([]domain.Container, error) {
	summaries, err := dl.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	containers := make([]domain.Container, 0, len(summaries))
	for _, s := range summaries {
		containers = append(containers, fromContainerSummary(s))
	}
	dl.logger.Trace().Int("count", len(containers)).Msg("Listed containers")
	return containers, nil
}

// InspectContainer returns the full label map and state of one container.
func (dl *DockerLister) InspectContainer(ctx context.Context, id string) (domain.Container, error) {
	resp, err := dl.cli.ContainerInspect(ctx, id)
	if err != nil {
		return domain.Container{}, fmt.Errorf("inspecting container %s: %w", id, err)
	}
	return fromInspectResponse(resp), nil
}

func (dl *DockerLister) Close() error {
	return dl.cli.Close()
}
