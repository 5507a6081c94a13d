package queue

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type definitionsFile struct {
	Schedules []Definition `yaml:"schedules"`
}

// LoadDefinitions decodes repeatable definitions from YAML:
//
//	schedules:
//	  - key: refresh-token-cleanup
//	    topic: tokens.cleanup
//	    pattern: "0 * * * *"
//	    payload:
//	      batch_size: 500
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file definitionsFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode schedule definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Schedules))
	for i, def := range file.Schedules {
		if def.Key == "" {
			return nil, fmt.Errorf("schedule #%d: %w", i, ErrScheduleKeyRequired)
		}
		if _, dup := seen[def.Key]; dup {
			return nil, fmt.Errorf("schedule %q is defined more than once", def.Key)
		}
		seen[def.Key] = struct{}{}
	}

	return file.Schedules, nil
}

// LoadDefinitionsFile reads definitions from a YAML file
func LoadDefinitionsFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule definitions: %w", err)
	}
	defer f.Close()

	return LoadDefinitions(f)
}
