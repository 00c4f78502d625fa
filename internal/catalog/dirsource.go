package catalog

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armpolicy"
	"github.com/juju/errors"
)

const builtInPrefix = "/providers/microsoft.authorization/"

// DirSource reads ARM policy definition and policy set definition JSON
// documents from a directory tree. Documents whose id is tenant level
// (/providers/Microsoft.Authorization/...) count as built-in; everything
// else belongs to the management group being loaded.
type DirSource struct {
	Path string

	loaded         bool
	definitions    []*armpolicy.Definition
	setDefinitions []*armpolicy.SetDefinition
}

var _ Source = (*DirSource)(nil)

func (s *DirSource) BuiltInDefinitions(ctx context.Context) ([]*armpolicy.Definition, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return filterDefinitions(s.definitions, true), nil
}

func (s *DirSource) ManagementGroupDefinitions(ctx context.Context, _ string) ([]*armpolicy.Definition, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return filterDefinitions(s.definitions, false), nil
}

func (s *DirSource) BuiltInSetDefinitions(ctx context.Context) ([]*armpolicy.SetDefinition, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return filterSetDefinitions(s.setDefinitions, true), nil
}

func (s *DirSource) ManagementGroupSetDefinitions(ctx context.Context, _ string) ([]*armpolicy.SetDefinition, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return filterSetDefinitions(s.setDefinitions, false), nil
}

type documentHeader struct {
	Type       string `json:"type"`
	Properties struct {
		PolicyDefinitions json.RawMessage `json:"policyDefinitions"`
	} `json:"properties"`
}

func (s *DirSource) load() error {
	if s.loaded {
		return nil
	}
	if s.Path == "" {
		return errors.NotValidf("empty definitions path")
	}

	var paths []string
	err := filepath.WalkDir(s.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return errors.Annotatef(err, "reading definitions from %q", s.Path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		// #nosec G304 -- path comes from the operator-configured definitions dir.
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Trace(err)
		}
		var header documentHeader
		if err := json.Unmarshal(data, &header); err != nil {
			return errors.Annotatef(err, "parsing %q", path)
		}
		if isSetDocument(header) {
			var set armpolicy.SetDefinition
			if err := json.Unmarshal(data, &set); err != nil {
				return errors.Annotatef(err, "parsing policy set definition %q", path)
			}
			s.setDefinitions = append(s.setDefinitions, &set)
			continue
		}
		var def armpolicy.Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return errors.Annotatef(err, "parsing policy definition %q", path)
		}
		s.definitions = append(s.definitions, &def)
	}
	logger.Debugf("read %d definitions and %d set definitions from %q",
		len(s.definitions), len(s.setDefinitions), s.Path)
	s.loaded = true
	return nil
}

func isSetDocument(h documentHeader) bool {
	switch strings.ToLower(h.Type) {
	case setDefinitionType:
		return true
	case definitionType:
		return false
	}
	return len(h.Properties.PolicyDefinitions) > 0
}

func isBuiltInID(id *string) bool {
	return id != nil && strings.HasPrefix(strings.ToLower(*id), builtInPrefix)
}

func filterDefinitions(in []*armpolicy.Definition, builtIn bool) []*armpolicy.Definition {
	var out []*armpolicy.Definition
	for _, def := range in {
		if isBuiltInID(def.ID) == builtIn {
			out = append(out, def)
		}
	}
	return out
}

func filterSetDefinitions(in []*armpolicy.SetDefinition, builtIn bool) []*armpolicy.SetDefinition {
	var out []*armpolicy.SetDefinition
	for _, set := range in {
		if isBuiltInID(set.ID) == builtIn {
			out = append(out, set)
		}
	}
	return out
}
