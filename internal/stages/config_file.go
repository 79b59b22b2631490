package stages

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/schemas"
	schemafiles "github.com/jonathan/staffing-pipeline/schemas"
)

// ConfigFile is the on-disk stage seed format
type ConfigFile struct {
	CompanyID string      `json:"company_id,omitempty"`
	Stages    []StageSpec `json:"stages"`
}

// Company parses the optional company id of the file
func (c *ConfigFile) Company() (uuid.UUID, bool) {
	if c.CompanyID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.CompanyID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

var stageConfigSchema = sync.OnceValues(func() (*schemas.Schema, error) {
	raw, err := schemafiles.Load(schemafiles.StageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load stage config schema: %w", err)
	}
	return schemas.Compile(schemafiles.StageConfig, raw)
})

// LoadConfigFile reads a stage seed file, validates it against the stage
// config schema and checks that active orders are unique
func LoadConfigFile(path string) (*ConfigFile, error) {
	schema, err := stageConfigSchema()
	if err != nil {
		return nil, err
	}
	data, err := schema.ValidateFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse stage config: %w", err)
	}

	companyID, _ := cfg.Company()
	seen := map[int]string{}
	for _, s := range cfg.Stages {
		if !s.active() {
			continue
		}
		if other, ok := seen[s.Order]; ok {
			return nil, &pipelineerr.ConfigurationError{
				CompanyID: companyID,
				Message:   fmt.Sprintf("stages %q and %q share order %d", other, s.Name, s.Order),
			}
		}
		seen[s.Order] = s.Name
	}
	return &cfg, nil
}
