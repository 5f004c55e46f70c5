// Package agents describes the specialists a run can be routed to and picks
// one for an incoming task.
package agents

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// AgentID names a specialist.
type AgentID string

// Built-in specialists.
const (
	Researcher    AgentID = "researcher"
	Scriptwriter  AgentID = "scriptwriter"
	ImageProducer AgentID = "image_producer"
	VideoProducer AgentID = "video_producer"
	Producer      AgentID = "producer"
)

// SchemaConstraint is the range of agents file versions this build reads.
const SchemaConstraint = "^1"

var (
	ErrNoDefinitions     = errors.New("agents: no definitions")
	ErrUnknownDefault    = errors.New("agents: default specialist is not defined")
	ErrDuplicateAgent    = errors.New("agents: duplicate specialist name")
	ErrSchemaVersion     = errors.New("agents: unsupported schema version")
	ErrUnknownAgent      = errors.New("agents: unknown specialist")
	ErrInvalidDefinition = errors.New("agents: invalid definition")
)

// Definition is a data-described capability bundle: instructions plus the
// tools the specialist may call.
type Definition struct {
	Name         AgentID  `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Instructions string   `yaml:"instructions" json:"instructions"`
	Tools        []string `yaml:"tools" json:"tools"`
	Keywords     []string `yaml:"keywords" json:"keywords"`
	Model        string   `yaml:"model,omitempty" json:"model,omitempty"`
}

// Clone returns a deep copy.
func (d Definition) Clone() Definition {
	d.Tools = slices.Clone(d.Tools)
	d.Keywords = slices.Clone(d.Keywords)
	return d
}

// File is the on-disk layout of an agents file.
type File struct {
	Version string       `yaml:"version"`
	Default AgentID      `yaml:"default"`
	Agents  []Definition `yaml:"agents"`
}

// LoadFile reads and validates an agents file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates agents file content.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the schema version and the definitions.
func (f *File) Validate() error {
	if err := checkVersion(f.Version); err != nil {
		return err
	}
	if len(f.Agents) == 0 {
		return ErrNoDefinitions
	}

	seen := make(map[AgentID]bool, len(f.Agents))
	for i, def := range f.Agents {
		if def.Name == "" {
			return fmt.Errorf("%w: agents[%d] has no name", ErrInvalidDefinition, i)
		}
		if seen[def.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, def.Name)
		}
		seen[def.Name] = true
	}

	if f.Default == "" {
		f.Default = Producer
	}
	if !seen[f.Default] {
		return fmt.Errorf("%w: %s", ErrUnknownDefault, f.Default)
	}
	return nil
}

func checkVersion(version string) error {
	constraint, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSchemaVersion, version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrSchemaVersion, v, SchemaConstraint)
	}
	return nil
}
