package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mpataki/cadence/internal/lua"
	"github.com/mpataki/cadence/internal/models"
	"gopkg.in/yaml.v3"
)

func Parse(path string) (*models.RunType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run type file: %w", err)
	}

	var rt models.RunType
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to parse run type YAML: %w", err)
	}

	if rt.ID == "" {
		base := filepath.Base(path)
		rt.ID = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	}

	return &rt, nil
}

// LoadAll reads every .yaml, .yml and .lua file in dirs. Later directories
// do not override run types already found in earlier ones.
func LoadAll(dirs []string) ([]*models.RunType, error) {
	var types []*models.RunType
	seen := make(map[string]bool)

	for _, dir := range dirs {
		found, err := loadFromDir(dir)
		if err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, rt := range found {
			if seen[rt.ID] {
				continue
			}
			seen[rt.ID] = true
			types = append(types, rt)
		}
	}

	return types, nil
}

func loadFromDir(dir string) ([]*models.RunType, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var types []*models.RunType
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		path := filepath.Join(dir, name)

		switch {
		case lua.IsLuaFile(name):
			defs, err := lua.LoadRunTypes(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			types = append(types, defs...)
		case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
			rt, err := Parse(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			types = append(types, rt)
		}
	}

	return types, nil
}

func Validate(rt *models.RunType) error {
	if rt.ID == "" {
		return fmt.Errorf("run type must have an id")
	}

	if len(rt.Steps) == 0 {
		return fmt.Errorf("run type %q must define at least one step", rt.ID)
	}

	known := make(map[string]bool)
	for i, s := range rt.Steps {
		if s == nil {
			return fmt.Errorf("run type %q: step %d is empty", rt.ID, i)
		}
		if s.Threshold < 1 || s.Threshold > 100 {
			return fmt.Errorf("run type %q: step %d threshold %d outside 1-100", rt.ID, i, s.Threshold)
		}

		switch s.Kind {
		case models.StepKindStart, models.StepKindSucceed:
			if s.Step == "" {
				return fmt.Errorf("run type %q: %s at %d%% must name a step", rt.ID, s.Kind, s.Threshold)
			}
		case models.StepKindBlock:
			if s.Step == "" {
				return fmt.Errorf("run type %q: block at %d%% must name a step", rt.ID, s.Threshold)
			}
			if s.Outcome.Reason == "" {
				return fmt.Errorf("run type %q: block of %q must have a reason", rt.ID, s.Step)
			}
		case models.StepKindLog:
			if len(s.Outcome.Logs) == 0 {
				return fmt.Errorf("run type %q: log at %d%% has no lines", rt.ID, s.Threshold)
			}
		default:
			return fmt.Errorf("run type %q: unknown step kind %q", rt.ID, s.Kind)
		}

		if s.Fatal && s.Kind != models.StepKindBlock {
			return fmt.Errorf("run type %q: only block steps can be fatal", rt.ID)
		}
		if s.Step != "" {
			known[s.Step] = true
		}
	}

	for _, ins := range rt.Insights {
		if ins == nil || ins.Title == "" {
			return fmt.Errorf("run type %q: insight must have a title", rt.ID)
		}
		for _, name := range ins.WhenDone {
			if !known[name] {
				return fmt.Errorf("run type %q: insight %q refers to unknown step %q", rt.ID, ins.Title, name)
			}
		}
	}

	return nil
}

// normalize returns a deep copy of rt with steps sorted by threshold.
// The sort is stable, so declaration order breaks ties.
func normalize(rt *models.RunType) *models.RunType {
	out := &models.RunType{
		ID:          rt.ID,
		Name:        rt.Name,
		Description: rt.Description,
	}
	if out.Name == "" {
		out.Name = rt.ID
	}

	for _, s := range rt.Steps {
		cp := *s
		cp.Outcome.Logs = append([]string(nil), s.Outcome.Logs...)
		cp.Outcome.Evidence = append([]string(nil), s.Outcome.Evidence...)
		out.Steps = append(out.Steps, &cp)
	}
	sort.SliceStable(out.Steps, func(i, j int) bool {
		return out.Steps[i].Threshold < out.Steps[j].Threshold
	})

	for _, ins := range rt.Insights {
		cp := *ins
		cp.WhenDone = append([]string(nil), ins.WhenDone...)
		out.Insights = append(out.Insights, &cp)
	}

	return out
}
