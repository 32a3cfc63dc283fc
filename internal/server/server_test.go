package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/auto-dns/traefik-cname-sync/internal/core"
	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	syncErr   error
	syncCalls int
	released  []string
	records   []domain.ManagedRecord
	pending   []domain.PendingDeletion
	held      []string
	views     []core.ContainerView
	viewsErr  error
}

func (f *fakeEngine) Sync(ctx context.Context) error {
	f.syncCalls++
	return f.syncErr
}

func (f *fakeEngine) RetryFailedDeletions(ctx context.Context) ([]string, error) {
	return f.released, nil
}

func (f *fakeEngine) Records() []domain.ManagedRecord            { return f.records }
func (f *fakeEngine) PendingDeletions() []domain.PendingDeletion { return f.pending }
func (f *fakeEngine) HeldContainers() []string                   { return f.held }

func (f *fakeEngine) Containers(ctx context.Context) ([]core.ContainerView, error) {
	return f.views, f.viewsErr
}

type fakeInspector struct {
	containers map[string]domain.Container
}

func (f fakeInspector) InspectContainer(ctx context.Context, id string) (domain.Container, error) {
	c, ok := f.containers[id]
	if !ok {
		return domain.Container{}, errors.New("no such container: " + id)
	}
	return c, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			TargetDomain:        "edge.example.net",
			PollInterval:        30,
			DeleteDelay:         300,
			RecordTTL:           3600,
			DeleteFailurePolicy: config.DeleteFailurePolicyRetry,
			LabelPrefix:         "traefik",
		},
		Registrar: config.RegistrarConfig{Account: "acme", APIKey: "secret"},
		Server:    config.ServerConfig{Port: 3000},
	}
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(zerolog.Nop(), testConfig(), &fakeEngine{}, fakeInspector{})
	rec := do(t, s, http.MethodGet, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.CredentialsConfigured)
	assert.Equal(t, "edge.example.net", body.Config.TargetDomain)
	assert.Equal(t, 30, body.Config.PollInterval)
	assert.Equal(t, 300, body.Config.DeleteDelay)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestRecordsAndPending(t *testing.T) {
	fireAt := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	engine := &fakeEngine{
		records: []domain.ManagedRecord{{RecordId: "1", Hostname: "app.example.com", Domain: "example.com", Subdomain: "app", ContainerId: "c1"}},
		pending: []domain.PendingDeletion{{ContainerId: "c1", FireAt: fireAt}},
		held:    []string{"c2"},
	}
	s := NewServer(zerolog.Nop(), testConfig(), engine, fakeInspector{})

	rec := do(t, s, http.MethodGet, "/api/records")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.ManagedRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Equal(t, engine.records, records)

	rec = do(t, s, http.MethodGet, "/api/pending")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending pendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, engine.pending, pending.Pending)
	assert.Equal(t, []string{"c2"}, pending.Held)
}

func TestContainers(t *testing.T) {
	engine := &fakeEngine{views: []core.ContainerView{{
		Container: domain.Container{Id: "c1", Name: "web", State: "running"},
		Parsed:    core.ParsedLabels{Enabled: true, Hostnames: []string{"app.example.com"}},
		Managed:   true,
	}}}
	s := NewServer(zerolog.Nop(), testConfig(), engine, fakeInspector{})

	rec := do(t, s, http.MethodGet, "/api/containers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"app.example.com"`))

	engine.viewsErr = errors.New("docker unreachable")
	rec = do(t, s, http.MethodGet, "/api/containers")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestContainerByID(t *testing.T) {
	inspector := fakeInspector{containers: map[string]domain.Container{
		"c1": {Id: "c1", Name: "web", State: "running", Labels: map[string]string{
			"traefik.enable":                "true",
			"traefik.http.routers.web.rule": "Host(`app.example.com`)",
		}},
	}}
	s := NewServer(zerolog.Nop(), testConfig(), &fakeEngine{}, inspector)

	rec := do(t, s, http.MethodGet, "/api/containers/c1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body containerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "web", body.Container.Name)
	assert.Equal(t, []string{"app.example.com"}, body.Parsed.Hostnames)

	rec = do(t, s, http.MethodGet, "/api/containers/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSync(t *testing.T) {
	engine := &fakeEngine{}
	s := NewServer(zerolog.Nop(), testConfig(), engine, fakeInspector{})

	rec := do(t, s, http.MethodPost, "/api/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, 1, engine.syncCalls)

	engine.syncErr = core.NewTickError("list containers", errors.New("docker unreachable"))
	rec = do(t, s, http.MethodPost, "/api/sync")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "docker unreachable")

	rec = do(t, s, http.MethodGet, "/api/sync")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRetryDeletions(t *testing.T) {
	s := NewServer(zerolog.Nop(), testConfig(), &fakeEngine{released: []string{"c1"}}, fakeInspector{})

	rec := do(t, s, http.MethodPost, "/api/deletions/retry")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"released":["c1"]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(zerolog.Nop(), testConfig(), &fakeEngine{}, fakeInspector{})
	rec := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
