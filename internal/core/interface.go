package core

import (
	"context"

	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/auto-dns/traefik-cname-sync/internal/registry"
)

type containerLister interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
}

type dnsRegistrar interface {
	CreateCNAME(ctx context.Context, domain, subdomain, target string, ttl int) (string, error)
	DeleteRecord(ctx context.Context, domain, recordId string) error
	ListRecords(ctx context.Context, domain string) ([]registry.Record, error)
}

type locker interface {
	LockTransaction(ctx context.Context, keys []string, fn func() error) error
}
