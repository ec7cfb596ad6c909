package identitystore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/transport"
	githttp "github.com/go-git/go-git/v6/plumbing/transport/http"

	"github.com/modelbridge/rtcore/identity"
)

// GitConfig configures a GitStore.
type GitConfig struct {
	RepoDir  string
	Remote   string
	Username string
	Password string
}

// GitStore persists identity.Credential records as one JSON file per
// credential inside a git working tree, committing and pushing on every
// Save/Delete. The repository holds only credential records; history is
// kept as-is, with no squashing.
type GitStore struct {
	mu     sync.Mutex
	cfg    GitConfig
	lastGC time.Time
}

// NewGitStore returns a GitStore writing into cfg.RepoDir, cloning or
// opening the repository as needed.
func NewGitStore(cfg GitConfig) (*GitStore, error) {
	if cfg.RepoDir == "" {
		return nil, fmt.Errorf("identitystore: git RepoDir is required")
	}
	s := &GitStore{cfg: cfg}
	if err := s.ensureRepository(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GitStore) ensureRepository() error {
	if _, err := os.Stat(filepath.Join(s.cfg.RepoDir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.cfg.RepoDir, 0o700); err != nil {
		return fmt.Errorf("identitystore: create repo dir: %w", err)
	}
	if s.cfg.Remote == "" {
		_, err := git.PlainInit(s.cfg.RepoDir, false)
		return err
	}
	_, err := git.PlainClone(s.cfg.RepoDir, &git.CloneOptions{
		URL:  s.cfg.Remote,
		Auth: s.authMethod(),
	})
	return err
}

func (s *GitStore) authMethod() transport.AuthMethod {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: s.cfg.Username, Password: s.cfg.Password}
}

func (s *GitStore) credentialPath(id string) string {
	return filepath.Join(s.cfg.RepoDir, "credentials", id+".json")
}

// Save implements identity.Store.
func (s *GitStore) Save(ctx context.Context, c *identity.Credential) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.credentialPath(c.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("identitystore: create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("identitystore: marshal credential %s: %w", c.ID, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("identitystore: write credential %s: %w", c.ID, err)
	}
	if err := s.commitAndPush("rtcore: save credential "+c.ID, path); err != nil {
		return "", err
	}
	return c.ID, nil
}

// List implements identity.Store.
func (s *GitStore) List(ctx context.Context) ([]*identity.Credential, error) {
	dir := filepath.Join(s.cfg.RepoDir, "credentials")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identitystore: read credentials dir: %w", err)
	}
	var out []*identity.Credential
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("identitystore: read %s: %w", entry.Name(), err)
		}
		var c identity.Credential
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("identitystore: unmarshal %s: %w", entry.Name(), err)
		}
		out = append(out, &c)
	}
	return out, nil
}

// Delete implements identity.Store.
func (s *GitStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.credentialPath(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("identitystore: remove credential %s: %w", id, err)
	}
	return s.commitAndPush("rtcore: delete credential "+id, path)
}

func (s *GitStore) commitAndPush(message string, path string) error {
	repo, err := git.PlainOpen(s.cfg.RepoDir)
	if err != nil {
		return fmt.Errorf("identitystore: open repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("identitystore: worktree: %w", err)
	}
	rel, err := filepath.Rel(s.cfg.RepoDir, path)
	if err != nil {
		return fmt.Errorf("identitystore: relative path: %w", err)
	}
	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("identitystore: git add: %w", err)
	}
	sig := &object.Signature{Name: "rtcore", Email: "rtcore@localhost", When: time.Now()}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig}); err != nil {
		return fmt.Errorf("identitystore: git commit: %w", err)
	}
	if s.cfg.Remote == "" {
		return nil
	}
	err = repo.Push(&git.PushOptions{Auth: s.authMethod()})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("identitystore: git push: %w", err)
	}
	return nil
}
