package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/iago/contact-distributor/internal/domain"
	"gopkg.in/yaml.v3"
)

type fileAgent struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

type fileDocument struct {
	Agents []fileAgent `yaml:"agents"`
}

// FileRoster reads agents from a YAML file:
//
//	agents:
//	  - id: ana
//	    name: Ana Souza
//	  - id: bruno
//	    name: Bruno Lima
//	    active: false
//
// Agents without an active flag are active. A reload that fails keeps the
// previous roster.
type FileRoster struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	agents []domain.AgentRef
}

func NewFileRoster(path string, logger *slog.Logger) (*FileRoster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	roster := &FileRoster{path: filepath.Clean(path), logger: logger}
	if err := roster.Reload(); err != nil {
		return nil, err
	}
	return roster, nil
}

func (r *FileRoster) ListActiveAgents(_ context.Context) ([]domain.AgentRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAgents(r.agents), nil
}

func (r *FileRoster) Reload() error {
	agents, err := readRosterFile(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()
	return nil
}

// Watch reloads the roster whenever the file changes until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (r *FileRoster) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch roster dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("roster reload failed, keeping previous roster", "path", r.path, "error", err)
				continue
			}
			r.logger.Info("roster reloaded", "path", r.path, "agents", r.size())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("roster watcher error", "error", err)
		}
	}
}

func (r *FileRoster) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func readRosterFile(path string) ([]domain.AgentRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var document fileDocument
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	if document.Agents == nil {
		return nil, errors.New("parse roster file: no agents key")
	}

	agents := make([]domain.AgentRef, 0, len(document.Agents))
	for _, agent := range document.Agents {
		if agent.Active != nil && !*agent.Active {
			continue
		}
		name := agent.Name
		if name == "" {
			name = agent.ID
		}
		agents = append(agents, domain.AgentRef{ID: agent.ID, Name: name})
	}
	if err := validate(agents); err != nil {
		return nil, fmt.Errorf("validate roster file: %w", err)
	}
	return agents, nil
}
