package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentList(t *testing.T) {
	agents, err := ParseAgentList(" ana:Ana Souza, bruno ,carla:Carla Dias,")
	require.NoError(t, err)
	assert.Equal(t, []domain.AgentRef{
		{ID: "ana", Name: "Ana Souza"},
		{ID: "bruno", Name: "bruno"},
		{ID: "carla", Name: "Carla Dias"},
	}, agents)

	empty, err := ParseAgentList("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseAgentList("ana:Ana,ana:Again")
	assert.ErrorContains(t, err, "duplicate agent id")

	_, err = ParseAgentList(":Nameless")
	assert.ErrorContains(t, err, "has no id")
}

func TestStaticRosterReturnsCopies(t *testing.T) {
	roster, err := NewStaticRoster([]domain.AgentRef{{ID: "ana", Name: "Ana"}})
	require.NoError(t, err)

	first, err := roster.ListActiveAgents(context.Background())
	require.NoError(t, err)
	first[0].Name = "changed"

	second, err := roster.ListActiveAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ana", second[0].Name)
}

func writeRoster(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileRosterFiltersInactiveAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, `
agents:
  - id: ana
    name: Ana Souza
  - id: bruno
    name: Bruno Lima
    active: false
  - id: carla
`)

	roster, err := NewFileRoster(path, nil)
	require.NoError(t, err)
	agents, err := roster.ListActiveAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.AgentRef{
		{ID: "ana", Name: "Ana Souza"},
		{ID: "carla", Name: "carla"},
	}, agents)
}

func TestFileRosterRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileRoster(filepath.Join(dir, "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read roster file")

	duplicate := filepath.Join(dir, "duplicate.yaml")
	writeRoster(t, duplicate, "agents:\n  - id: ana\n  - id: ana\n")
	_, err = NewFileRoster(duplicate, nil)
	assert.ErrorContains(t, err, "duplicate agent id")

	broken := filepath.Join(dir, "broken.yaml")
	writeRoster(t, broken, "agents: [\n")
	_, err = NewFileRoster(broken, nil)
	assert.ErrorContains(t, err, "parse roster file")
}

func TestFileRosterReloadKeepsLastGoodRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, "agents:\n  - id: ana\n")
	roster, err := NewFileRoster(path, nil)
	require.NoError(t, err)

	writeRoster(t, path, "agents: [\n")
	assert.Error(t, roster.Reload())

	agents, err := roster.ListActiveAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.AgentRef{{ID: "ana", Name: "ana"}}, agents)
}

func TestFileRosterWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, "agents:\n  - id: ana\n")
	roster, err := NewFileRoster(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- roster.Watch(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeRoster(t, path, "agents:\n  - id: ana\n  - id: bruno\n")

	assert.Eventually(t, func() bool {
		agents, err := roster.ListActiveAgents(context.Background())
		return err == nil && len(agents) == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
