package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-getter"
)

// FetchTimeout bounds the download of a remote pool seed.
const FetchTimeout = 30 * time.Second

/*
FetchPoolSeed downloads src into the directory dst and returns the path of the
first json or toml file found there. dst must not exist yet.

src is anything go-getter understands: a local path, an https URL or a git
source such as github.com/org/repo//pools.toml.
*/
func FetchPoolSeed(ctx context.Context, src, dst string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeAny,
		Detectors: []getter.Detector{
			new(getter.GitHubDetector),
			new(getter.GitDetector),
			new(getter.FileDetector),
		},
		Getters: map[string]getter.Getter{
			"git":   new(getter.GitGetter),
			"file":  &getter.FileGetter{Copy: true},
			"http":  new(getter.HttpGetter),
			"https": new(getter.HttpGetter),
		},
	}

	if err := client.Get(); err != nil {
		return "", fmt.Errorf("failed to fetch pool seed from %s: %w", src, err)
	}

	// local directories are linked, not copied
	root, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return "", fmt.Errorf("failed to resolve fetched pool seed: %w", err)
	}

	var found string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".toml") {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan fetched pool seed: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("no json or toml file found in %s", src)
	}
	return found, nil
}

// ResolvePoolSeed loads the configured seed, fetching it first when it is not a
// local file. An empty source yields an empty seed.
func ResolvePoolSeed(ctx context.Context, src string) (*PoolSeed, error) {
	if src == "" {
		return &PoolSeed{}, nil
	}
	if info, err := os.Stat(src); err == nil && !info.IsDir() {
		return LoadPoolSeed(src)
	}

	tmp, err := os.MkdirTemp("", "swaprouter-seed-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create seed directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	path, err := FetchPoolSeed(ctx, src, filepath.Join(tmp, "seed"))
	if err != nil {
		return nil, err
	}
	return LoadPoolSeed(path)
}
