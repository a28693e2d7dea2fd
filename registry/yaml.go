package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arbiterlabs/arbiter/core"
)

// yamlAgent is the on-disk descriptor shape. Timeout is a Go duration
// string ("45s", "2m").
type yamlAgent struct {
	Name         string   `yaml:"name"`
	DependsOn    []string `yaml:"depends_on"`
	Required     bool     `yaml:"required"`
	Timeout      string   `yaml:"timeout"`
	Priority     int      `yaml:"priority"`
	Domain       string   `yaml:"domain"`
	CallCategory string   `yaml:"call_category"`
	Disabled     bool     `yaml:"disabled"`
}

type yamlFile struct {
	Agents []yamlAgent `yaml:"agents"`
}

// LoadYAML parses a registry definition from YAML bytes and returns a
// populated, validated registry.
//
//	agents:
//	  - name: security
//	    required: true
//	    timeout: 45s
//	    priority: 10
//	    domain: security
//	    call_category: llm-call
//	  - name: synthesis
//	    depends_on: [security]
func LoadYAML(data []byte) (*Registry, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse registry yaml: %w", core.ErrConfiguration, err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("%w: registry yaml defines no agents", core.ErrConfiguration)
	}

	r := New()
	for _, a := range f.Agents {
		d := core.AgentDescriptor{
			Name:         a.Name,
			DependsOn:    a.DependsOn,
			Required:     a.Required,
			Priority:     a.Priority,
			Domain:       a.Domain,
			CallCategory: a.CallCategory,
			Disabled:     a.Disabled,
		}
		if a.Timeout != "" {
			t, err := time.ParseDuration(a.Timeout)
			if err != nil {
				return nil, fmt.Errorf("%w: agent %q: invalid timeout %q: %w", core.ErrConfiguration, a.Name, a.Timeout, err)
			}
			d.Timeout = t
		}
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadYAMLFile reads and parses a registry definition file.
func LoadYAMLFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return LoadYAML(data)
}
