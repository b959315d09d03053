package registry

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/relay/pkg/models"
)

// descriptorFile is the on-disk shape of an executor descriptor file.
//
//	executors:
//	  - id: coder
//	    capabilities: [code, testing]
//	    availability: available
type descriptorFile struct {
	Executors []models.ExecutorDescriptor `yaml:"executors"`
}

// LoadFile reads executor descriptors from a YAML (or JSON) file.
// A missing availability defaults to available.
func LoadFile(path string) ([]models.ExecutorDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	return ParseDescriptors(data)
}

// ParseDescriptors decodes and checks a descriptor document.
func ParseDescriptors(data []byte) ([]models.ExecutorDescriptor, error) {
	var f descriptorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse descriptors: %w", err)
	}

	seen := make(map[string]bool, len(f.Executors))
	for i := range f.Executors {
		d := &f.Executors[i]
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("executors[%d]: missing id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("executors[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if d.Availability == "" {
			d.Availability = models.AvailabilityAvailable
		}
		if !d.Availability.Valid() {
			return nil, fmt.Errorf("executor %q: unknown availability %q", d.ID, d.Availability)
		}
	}
	return f.Executors, nil
}
