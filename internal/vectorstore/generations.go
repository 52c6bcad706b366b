package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docqa/internal/domain"
)

const (
	currentFile  = "CURRENT"
	manifestFile = "manifest.json"
	genPrefix    = "gen-"
)

// Generations lays out on-disk index builds under one root:
//
//	root/gen-<build id>/   one directory per build
//	root/CURRENT           name of the published generation
//
// A build is written into its own directory and becomes visible only when
// CURRENT is replaced by rename, so readers see the old or the new
// generation and never a partial one.
type Generations struct {
	root string
}

// NewGenerations returns a layout rooted at root.
func NewGenerations(root string) *Generations {
	return &Generations{root: root}
}

// Root returns the root directory.
func (g *Generations) Root() string { return g.root }

// Stage creates an empty directory for build id.
func (g *Generations) Stage(id string) (string, error) {
	dir := g.dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("staging generation %s: %w", id, err)
	}
	return dir, nil
}

// Discard removes a staged generation that will not be published.
func (g *Generations) Discard(id string) {
	_ = os.RemoveAll(g.dir(id))
}

// Publish writes m into the staged generation and atomically points CURRENT
// at it. Generations that are no longer current are removed afterwards.
func (g *Generations) Publish(m Manifest) error {
	dir := g.dir(m.BuildID)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(dir, manifestFile), data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	syncDir(dir)

	tmp, err := os.CreateTemp(g.root, currentFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("publishing generation: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(genPrefix + m.BuildID + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("publishing generation: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("publishing generation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publishing generation: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(g.root, currentFile)); err != nil {
		return fmt.Errorf("publishing generation: %w", err)
	}
	syncDir(g.root)

	g.prune(m.BuildID)
	return nil
}

// Current returns the directory and manifest of the published generation,
// or domain.ErrIndexNotFound if nothing was ever published.
func (g *Generations) Current() (string, Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(g.root, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", Manifest{}, domain.ErrIndexNotFound
		}
		return "", Manifest{}, err
	}
	name := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(name, genPrefix) || strings.ContainsAny(name, `/\`) {
		return "", Manifest{}, fmt.Errorf("corrupt %s pointer %q", currentFile, name)
	}
	dir := filepath.Join(g.root, name)

	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return "", Manifest{}, fmt.Errorf("reading manifest of %s: %w", name, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", Manifest{}, fmt.Errorf("decoding manifest of %s: %w", name, err)
	}
	return dir, m, nil
}

func (g *Generations) dir(id string) string {
	return filepath.Join(g.root, genPrefix+id)
}

// prune removes every generation except keep, including staging leftovers
// from crashed builds.
func (g *Generations) prune(keep string) {
	entries, err := os.ReadDir(g.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) || e.Name() == genPrefix+keep {
			continue
		}
		_ = os.RemoveAll(filepath.Join(g.root, e.Name()))
	}
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
