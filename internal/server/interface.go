package server

import (
	"context"

	"github.com/auto-dns/traefik-cname-sync/internal/core"
	"github.com/auto-dns/traefik-cname-sync/internal/domain"
)

type syncEngine interface {
	Sync(ctx context.Context) error
	RetryFailedDeletions(ctx context.Context) ([]string, error)
	Records() []domain.ManagedRecord
	PendingDeletions() []domain.PendingDeletion
	HeldContainers() []string
	Containers(ctx context.Context) ([]core.ContainerView, error)
}

type containerInspector interface {
	InspectContainer(ctx context.Context, id string) (domain.Container, error)
}
