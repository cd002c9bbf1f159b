package store

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/charla-ai/charla/pkg/model"
)

// personaSeedFile is the on-disk shape of a persona seed file.
type personaSeedFile struct {
	Personas []model.Persona `yaml:"personas"`
}

// LoadPersonaSeedFile parses a YAML persona seed file. Entries without an id
// get a generated UUID; entries without a name are rejected.
func LoadPersonaSeedFile(path string) ([]model.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read persona seed file")
	}
	var f personaSeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse persona seed file")
	}
	for i := range f.Personas {
		if f.Personas[i].Name == "" {
			return nil, errors.Errorf("persona seed entry %d has no name", i)
		}
		if f.Personas[i].ID == "" {
			f.Personas[i].ID = uuid.NewString()
		} else if _, err := uuid.Parse(f.Personas[i].ID); err != nil {
			return nil, errors.Wrapf(err, "persona %q has a non-UUID id", f.Personas[i].Name)
		}
	}
	return f.Personas, nil
}
