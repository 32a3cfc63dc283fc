package registry

import "strconv"

type namecomRecord struct {
	Id         int64  `json:"id,omitempty"`
	DomainName string `json:"domainName,omitempty"`
	Host       string `json:"host"`
	FQDN       string `json:"fqdn,omitempty"`
	Type       string `json:"type"`
	Answer     string `json:"answer"`
	TTL        int    `json:"ttl,omitempty"`
}

type namecomListResponse struct {
	Records  []namecomRecord `json:"records"`
	NextPage int             `json:"nextPage,omitempty"`
}

type namecomErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (r namecomRecord) toRecord(domain string) Record {
	d := r.DomainName
	if d == "" {
		d = domain
	}
	return Record{
		Id:     strconv.FormatInt(r.Id, 10),
		Domain: d,
		Host:   r.Host,
		FQDN:   r.FQDN,
		Type:   r.Type,
		Answer: r.Answer,
		TTL:    r.TTL,
	}
}
