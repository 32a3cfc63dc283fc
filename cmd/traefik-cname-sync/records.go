package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/auto-dns/traefik-cname-sync/internal/logger"
	"github.com/auto-dns/traefik-cname-sync/internal/registry"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the DNS records of a domain at the registrar",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cmd.Context().Value(configKey).(*config.Config)
			domain, err := cmd.Flags().GetString("domain")
			if err != nil {
				return err
			}
			if domain == "" {
				return fmt.Errorf("--domain is required")
			}
			log := logger.SetupLogger(&cfg.Logging)
			reg := registry.NewNamecomRegistry(&cfg.Registrar, logger.WithComponent(log, "registrar"))
			return printRecords(cmd.Context(), cmd.OutOrStdout(), reg, domain)
		},
	}
	cmd.Flags().String("domain", "", "registrable domain to list, e.g. example.com")
	return cmd
}

func printRecords(ctx context.Context, out io.Writer, lister recordLister, domain string) error {
	records, err := lister.ListRecords(ctx, domain)
	if err != nil {
		return fmt.Errorf("listing records for %s: %w", domain, err)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tHOST\tANSWER\tTTL")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.Id, r.Type, r.FQDN, r.Answer, r.TTL)
	}
	return w.Flush()
}
