package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownEnvironment is returned when a lookup names no catalog entry.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Default locations probed when no explicit catalog path is configured.
// The container image copies the catalog to /app/config; local runs keep
// it next to the binary.
var defaultPaths = []string{
	"/app/config/environments.yaml",
	"config/environments.yaml",
}

// Environment describes one language runtime: which image backs it, how
// source files are named, and how they are compiled and run.
type Environment struct {
	Name            string
	Image           string
	DefaultFilename string
	FileExtension   string
	RunCommand      string
	CompileCommand  string
	Description     string
	Enabled         bool
}

// Defaults is the catalog-level defaults block.
type Defaults struct {
	DefaultEnvironment string `yaml:"default_environment"`
	WorkspaceDir       string `yaml:"workspace_dir"`
	ExecutorUser       string `yaml:"executor_user"`
}

// Registry is the immutable environment catalog, loaded once at startup.
type Registry struct {
	envs     map[string]Environment
	enabled  []string
	defaults Defaults
}

type rawEnvironment struct {
	Image           string `yaml:"image"`
	DefaultFilename string `yaml:"default_filename"`
	FileExtension   string `yaml:"file_extension"`
	RunCommand      string `yaml:"run_command"`
	CompileCommand  string `yaml:"compile_command"`
	Description     string `yaml:"description"`
	Enabled         *bool  `yaml:"enabled"`
}

type catalogFile struct {
	Defaults     Defaults                  `yaml:"defaults"`
	Environments map[string]rawEnvironment `yaml:"environments"`
}

// Load reads the catalog from path. An empty path probes the default
// locations in order.
func Load(path string) (*Registry, error) {
	if path == "" {
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("environments catalog not found in %v", defaultPaths)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environments catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from raw catalog YAML.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse environments catalog: %w", err)
	}
	if len(file.Environments) == 0 {
		return nil, errors.New("environments catalog defines no environments")
	}

	r := &Registry{
		envs:     make(map[string]Environment, len(file.Environments)),
		defaults: file.Defaults,
	}
	if r.defaults.DefaultEnvironment == "" {
		r.defaults.DefaultEnvironment = "python"
	}
	if r.defaults.WorkspaceDir == "" {
		r.defaults.WorkspaceDir = "/workspace"
	}
	if r.defaults.ExecutorUser == "" {
		r.defaults.ExecutorUser = "executor"
	}

	for name, raw := range file.Environments {
		env := Environment{
			Name:            name,
			Image:           raw.Image,
			DefaultFilename: raw.DefaultFilename,
			FileExtension:   raw.FileExtension,
			RunCommand:      raw.RunCommand,
			CompileCommand:  raw.CompileCommand,
			Description:     raw.Description,
			Enabled:         raw.Enabled == nil || *raw.Enabled,
		}
		if env.Image == "" {
			env.Image = name
		}
		if env.DefaultFilename == "" {
			env.DefaultFilename = "main.py"
		}
		if env.FileExtension == "" {
			env.FileExtension = ".py"
		}
		if env.RunCommand == "" {
			env.RunCommand = "python {file_path}"
		}
		r.envs[name] = env
		if env.Enabled {
			r.enabled = append(r.enabled, name)
		}
	}
	sort.Strings(r.enabled)

	return r, nil
}

// List returns the names of enabled environments in stable order.
func (r *Registry) List() []string {
	out := make([]string, len(r.enabled))
	copy(out, r.enabled)
	return out
}

// Get returns the entry for name. Disabled entries still resolve; callers
// selecting environments for new work must check Enabled.
func (r *Registry) Get(name string) (Environment, error) {
	env, ok := r.envs[name]
	if !ok {
		return Environment{}, fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
	}
	return env, nil
}

// ResolveImage returns the full image name for an environment,
// "{prefix}-{image}".
func (r *Registry) ResolveImage(name, prefix string) (string, error) {
	env, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", prefix, env.Image), nil
}

// DefaultFilename returns the environment's default source filename.
func (r *Registry) DefaultFilename(name string) (string, error) {
	env, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return env.DefaultFilename, nil
}

// Defaults returns the catalog defaults block.
func (r *Registry) Defaults() Defaults {
	return r.defaults
}
