package main

import (
	"context"

	"github.com/auto-dns/traefik-cname-sync/internal/registry"
)

type application interface {
	Run(ctx context.Context) error
	Close() error
}

type recordLister interface {
	ListRecords(ctx context.Context, domain string) ([]registry.Record, error)
}
