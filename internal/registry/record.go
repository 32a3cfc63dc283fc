package registry

// Record is a DNS record as the registrar reports it.
type Record struct {
	Id     string `json:"id"`
	Domain string `json:"domain"`
	Host   string `json:"host"`
	FQDN   string `json:"fqdn"`
	Type   string `json:"type"`
	Answer string `json:"answer"`
	TTL    int    `json:"ttl"`
}
