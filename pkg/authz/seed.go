package authz

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the declarative catalog loaded at start-up
type Seed struct {
	Resources  []SeedEntry   `yaml:"resources"`
	Operations []SeedEntry   `yaml:"operations"`
	Profiles   []SeedProfile `yaml:"profiles"`
}

// SeedEntry describes a resource or an operation
type SeedEntry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedProfile describes a profile and its grants.
// Permissions maps resource code to granted operation codes; Fields maps
// resource code to field name to EDIT, READ or HIDDEN.
type SeedProfile struct {
	Code        string                       `yaml:"code"`
	Name        string                       `yaml:"name"`
	Description string                       `yaml:"description"`
	Level       int                          `yaml:"level"`
	Permissions map[string][]string          `yaml:"permissions"`
	Fields      map[string]map[string]string `yaml:"fields"`
}

// SeedReport counts what ApplySeed created
type SeedReport struct {
	Resources  int `json:"resources"`
	Operations int `json:"operations"`
	Profiles   int `json:"profiles"`
	Grants     int `json:"grants"`
}

// LoadSeed parses a YAML catalog
func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		if err == io.EOF {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// LoadSeedFile parses the YAML catalog at path
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

func (s *Seed) validate() error {
	resources := make(map[string]bool)
	for _, r := range s.Resources {
		if NormalizeCode(r.Code) == "" {
			return fmt.Errorf("seed resource without code")
		}
		resources[NormalizeCode(r.Code)] = true
	}
	operations := make(map[string]bool)
	for _, o := range s.Operations {
		if NormalizeCode(o.Code) == "" {
			return fmt.Errorf("seed operation without code")
		}
		operations[NormalizeCode(o.Code)] = true
	}

	seen := make(map[string]bool)
	for _, p := range s.Profiles {
		code := NormalizeCode(p.Code)
		if code == "" {
			return fmt.Errorf("seed profile without code")
		}
		if seen[code] {
			return fmt.Errorf("seed profile %s declared twice", code)
		}
		seen[code] = true

		for resource, ops := range p.Permissions {
			if !resources[NormalizeCode(resource)] {
				return fmt.Errorf("seed profile %s references unknown resource %s", code, resource)
			}
			for _, op := range ops {
				if !operations[NormalizeCode(op)] {
					return fmt.Errorf("seed profile %s references unknown operation %s", code, op)
				}
			}
		}
		for resource, fields := range p.Fields {
			if !resources[NormalizeCode(resource)] {
				return fmt.Errorf("seed profile %s references unknown resource %s", code, resource)
			}
			for field, access := range fields {
				if _, err := ParseFieldAccess(access); err != nil {
					return fmt.Errorf("seed profile %s field %s.%s: %w", code, resource, field, err)
				}
			}
		}
	}
	return nil
}
