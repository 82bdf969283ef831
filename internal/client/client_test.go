package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iago/contact-distributor/internal/domain"
	httpserver "github.com/iago/contact-distributor/internal/http"
	"github.com/iago/contact-distributor/internal/http/handlers"
	"github.com/iago/contact-distributor/internal/repository"
	"github.com/iago/contact-distributor/internal/roster"
	"github.com/iago/contact-distributor/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	agents, err := roster.NewStaticRoster([]domain.AgentRef{{ID: "ana", Name: "Ana"}, {ID: "bruno", Name: "Bruno"}})
	require.NoError(t, err)
	svc := service.NewDistributionService(service.DistributionDependencies{
		Roster: agents,
		Store:  repository.NewMemoryDistributionStore(),
	})
	server := httptest.NewServer(httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:       handlers.NewAPI(svc, 1<<20, nil),
		AuthToken: "client-token",
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientRoundTrip(t *testing.T) {
	server := newAPIServer(t)
	c := New(server.URL, "client-token")
	ctx := context.Background()

	uploaded, err := c.Upload(ctx, UploadInput{
		Filename: "/tmp/leads.csv",
		Data:     []byte("FirstName,Phone,Notes\nAlice,555-0100,x\nBob,555-0101,y\n,555-0102,z\n"),
		Name:     "Leads",
	})
	require.NoError(t, err)
	assert.Equal(t, "Leads", uploaded.Distribution.Name)
	assert.Equal(t, 2, uploaded.Distribution.TotalContacts)
	assert.Len(t, uploaded.RowErrors, 1)

	distributions, err := c.ListDistributions(ctx)
	require.NoError(t, err)
	require.Len(t, distributions, 1)

	detail, err := c.GetDistribution(ctx, uploaded.Distribution.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Contacts, 2)

	agents, err := c.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	contacts, err := c.ListAgentContacts(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Alice", contacts[0].FirstName)
}

func TestClientDecodesAPIErrors(t *testing.T) {
	server := newAPIServer(t)
	ctx := context.Background()

	_, err := New(server.URL, "client-token").GetDistribution(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)

	_, err = New(server.URL, "wrong").ListAgents(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestNewUsesEnvironmentDefaults(t *testing.T) {
	t.Setenv("DISTRIBUTOR_URL", "http://distributor.internal:9000/")
	t.Setenv("DISTRIBUTOR_CLIENT_TIMEOUT", "5s")

	c := New("", "")
	assert.Equal(t, "http://distributor.internal:9000", c.baseURL)
	assert.Equal(t, "5s", c.httpClient.Timeout.String())
}
