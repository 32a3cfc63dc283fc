package domain

import (
	"fmt"
	"time"
)

// RecordKey identifies a managed record: one hostname owned by one container.
type RecordKey struct {
	ContainerId string
	Hostname    string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s|%s", k.ContainerId, k.Hostname)
}

// ManagedRecord is a CNAME this service created at the registrar and is
// responsible for deleting. It is replaced wholesale, never edited.
type ManagedRecord struct {
	RecordId      string    `json:"record_id"`
	Hostname      string    `json:"hostname"`
	Domain        string    `json:"domain"`
	Subdomain     string    `json:"subdomain"`
	Target        string    `json:"target"`
	ContainerId   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r ManagedRecord) Key() RecordKey {
	return RecordKey{ContainerId: r.ContainerId, Hostname: r.Hostname}
}

func (r ManagedRecord) Render() string {
	return fmt.Sprintf("[CNAME] %s -> %s (id=%s, container_id=%s, container_name=%s)",
		r.Hostname, r.Target, r.RecordId, r.ContainerId, r.ContainerName)
}

// PendingDeletion is a read-only view of a scheduled deletion of every record
// owned by a container.
type PendingDeletion struct {
	ContainerId string    `json:"container_id"`
	FireAt      time.Time `json:"fire_at"`
}
