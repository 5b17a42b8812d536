// Package recipe stores and runs named command sequences. A recipe is a
// TOML file listing loom subcommand invocations to execute in order.
package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Recipe is one stored command sequence.
type Recipe struct {
	Name        string     `toml:"name" json:"name"`
	Description string     `toml:"description,omitempty" json:"description,omitempty"`
	Steps       [][]string `toml:"steps" json:"steps"`
}

// Store reads and writes recipes under one directory.
type Store struct {
	dir string
}

// NewStore uses <dataDir>/recipes for recipe files.
func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "recipes")}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".toml")
}

// List returns all recipes sorted by name. A missing directory is an
// empty list.
func (s *Store) List() ([]Recipe, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}
	var recipes []Recipe
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		r, err := s.Load(strings.TrimSuffix(entry.Name(), ".toml"))
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, *r)
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	return recipes, nil
}

// Load reads one recipe by name.
func (s *Store) Load(name string) (*Recipe, error) {
	var r Recipe
	if _, err := toml.DecodeFile(s.path(name), &r); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("recipe %q not found", name)
		}
		return nil, fmt.Errorf("failed to parse recipe %q: %w", name, err)
	}
	if r.Name == "" {
		r.Name = name
	}
	return &r, nil
}

// Create writes a new recipe file. Refuses to overwrite.
func (s *Store) Create(r *Recipe) error {
	if r.Name == "" {
		return fmt.Errorf("recipe name is required")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("recipe %q has no steps", r.Name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create recipes directory: %w", err)
	}
	path := s.path(r.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("recipe %q already exists", r.Name)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recipe file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(r); err != nil {
		return fmt.Errorf("failed to write recipe %q: %w", r.Name, err)
	}
	return nil
}

// Runner executes one subcommand invocation (argv without the binary name).
type Runner func(ctx context.Context, args []string) error

// StepResult records one executed step.
type StepResult struct {
	Args  []string `json:"args"`
	Error string   `json:"error,omitempty"`
}

// Run executes the recipe's steps in order, stopping at the first failure.
func (s *Store) Run(ctx context.Context, name string, run Runner) ([]StepResult, error) {
	r, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	var results []StepResult
	for i, step := range r.Steps {
		if len(step) == 0 {
			continue
		}
		res := StepResult{Args: step}
		if err := run(ctx, step); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			return results, fmt.Errorf("recipe %q step %d (%s) failed: %w",
				name, i+1, strings.Join(step, " "), err)
		}
		results = append(results, res)
	}
	return results, nil
}
