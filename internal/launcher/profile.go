package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier names accepted in agent profiles.
const (
	TierPrimary   = "primary"
	TierDependent = "dependent"
)

// Profile describes one agent to launch: the identity base it
// registers under, the role recorded in its metadata, and its loop
// timing. Profiles load from YAML or JSON, one per file or a list.
type Profile struct {
	ID           string         `yaml:"id" json:"id"`
	Role         string         `yaml:"role,omitempty" json:"role,omitempty"`
	Tier         string         `yaml:"tier,omitempty" json:"tier,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	PollInterval string         `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
}

// Validate checks the profile is launchable.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	switch p.Tier {
	case "", TierPrimary, TierDependent:
	default:
		return fmt.Errorf("profile %s: unknown tier %q (want primary or dependent)", p.ID, p.Tier)
	}
	_, err := p.Interval()
	return err
}

// Interval parses the poll interval. Zero means the runner default.
func (p *Profile) Interval() (time.Duration, error) {
	if p.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("profile %s: poll_interval: %w", p.ID, err)
	}
	return d, nil
}

// RegistrationMetadata merges the role into the metadata payload the
// agent submits at registration.
func (p *Profile) RegistrationMetadata() map[string]any {
	if p.Role == "" && len(p.Metadata) == 0 {
		return nil
	}
	md := make(map[string]any, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		md[k] = v
	}
	if p.Role != "" {
		md["role"] = p.Role
	}
	return md
}

// LoadProfiles reads agent profiles from a YAML or JSON file, or from
// every such file in a directory, in file-name order. Duplicate base
// ids are allowed; registration allocates distinct identities.
func LoadProfiles(path string) ([]Profile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".yaml", ".yml", ".json":
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	var profiles []Profile
	for _, f := range files {
		batch, err := loadProfileFile(f)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, batch...)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no agent profiles found under %s", path)
	}

	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// loadProfileFile decodes one file, accepting either a single profile
// or a list of them.
func loadProfileFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var list []Profile
		if err := json.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		var one Profile
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return []Profile{one}, nil
	}

	var list []Profile
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one Profile
	if err := yaml.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return []Profile{one}, nil
}

// SplitTiers partitions profiles into primaries and dependents. When
// no profile declares a tier there is nothing to split and callers run
// a flat group instead.
func SplitTiers(profiles []Profile) (primaries, dependents []Profile, tiered bool) {
	for _, p := range profiles {
		if p.Tier != "" {
			tiered = true
			break
		}
	}
	if !tiered {
		return nil, nil, false
	}
	for _, p := range profiles {
		if p.Tier == TierPrimary {
			primaries = append(primaries, p)
		} else {
			dependents = append(dependents, p)
		}
	}
	return primaries, dependents, true
}
