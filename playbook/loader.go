package playbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadFile parses one playbook from a YAML file and validates it.
func LoadFile(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook file %s: %w", path, err)
	}

	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse playbook file %s: %w", path, err)
	}

	if err := validate.Struct(&pb); err != nil {
		return nil, fmt.Errorf("playbook file %s: %w", path, err)
	}
	if err := validateSteps(&pb); err != nil {
		return nil, fmt.Errorf("playbook file %s: %w", path, err)
	}
	return &pb, nil
}

// LoadDir loads every .yml/.yaml playbook under dir. Files that fail to
// parse or validate are logged and skipped so one bad file cannot block
// the rest of the catalog from loading.
func LoadDir(dir string, logger *zap.SugaredLogger) ([]*Playbook, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook directory %s: %w", dir, err)
	}

	var playbooks []*Playbook
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		pb, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warnf("Skipping playbook file %s: %v", entry.Name(), err)
			continue
		}
		playbooks = append(playbooks, pb)
	}

	logger.Infof("Loaded %d playbooks from %s", len(playbooks), dir)
	return playbooks, nil
}
