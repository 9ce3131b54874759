package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

// Syncer keeps the vault directory under git: commit local edits, rebase on
// the remote, push. A file lock serializes runs against other processes
// using the same vault.
type Syncer struct {
	root       string
	remoteName string
	branch     string
	lock       *flock.Flock
	lockRetry  time.Duration
	lockWait   time.Duration
}

func NewSyncer(vaultCfg config.VaultConfig, gitCfg config.GitConfig) (*Syncer, error) {
	lockWait, err := config.DurationOrDefault(vaultCfg.LockTimeout, config.DefaultVaultLockTimeout)
	if err != nil {
		return nil, err
	}
	lockRetry, err := config.DurationOrDefault(vaultCfg.LockRetry, config.DefaultVaultLockRetry)
	if err != nil {
		return nil, err
	}
	remoteName := gitCfg.RemoteName
	if remoteName == "" {
		remoteName = config.DefaultGitRemoteName
	}
	branch := gitCfg.Branch
	if branch == "" {
		branch = config.DefaultGitBranch
	}
	return &Syncer{
		root:       vaultCfg.Path,
		remoteName: remoteName,
		branch:     branch,
		lock:       flock.New(filepath.Join(vaultCfg.Path, ".git-sync.lock")),
		lockRetry:  lockRetry,
		lockWait:   lockWait,
	}, nil
}

// Sync runs one commit/pull/push cycle. A vault with no pending changes
// still pulls, so external edits land locally.
func (s *Syncer) Sync(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, s.lockRetry)
	if err != nil {
		return errors.Wrap(err, "acquire vault lock")
	}
	if !locked {
		return errors.Conflict("vault is locked by another process")
	}
	defer s.lock.Unlock()

	dirty, err := s.hasChanges(ctx)
	if err != nil {
		return err
	}
	if dirty {
		if err := s.commitAll(ctx); err != nil {
			return err
		}
	}

	if err := s.git(ctx, "pull", "--rebase", s.remoteName, s.branch); err != nil {
		return fmt.Errorf("pull vault changes: %w", err)
	}
	if dirty {
		if err := s.git(ctx, "push", s.remoteName, s.branch); err != nil {
			return fmt.Errorf("push vault changes: %w", err)
		}
	}

	slog.Info("Synced vault repository", "committed", dirty)
	return nil
}

func (s *Syncer) hasChanges(ctx context.Context) (bool, error) {
	out, err := s.gitOutput(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("check vault status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

func (s *Syncer) commitAll(ctx context.Context) error {
	if err := s.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("stage vault changes: %w", err)
	}
	message := "vault sync " + time.Now().UTC().Format("2006-01-02 15:04:05")
	if err := s.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit vault changes: %w", err)
	}
	return nil
}

func (s *Syncer) git(ctx context.Context, args ...string) error {
	_, err := s.gitOutput(ctx, args...)
	return err
}

func (s *Syncer) gitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.root

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %v: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}
