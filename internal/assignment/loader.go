package assignment

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/davidahmann/alzpolicy/internal/canonical"
)

type Loaded struct {
	Descriptors []Descriptor
	// Hash covers the raw bytes of every file read, in path order.
	Hash string
}

// LoadDescriptors reads descriptors from a YAML or JSON file, or from every
// such file below a directory. A file holds one or more YAML documents,
// each either one descriptor or a list.
func LoadDescriptors(path string) (Loaded, error) {
	paths, err := descriptorFiles(path)
	if err != nil {
		return Loaded{}, err
	}

	var (
		out Loaded
		all bytes.Buffer
	)
	for _, p := range paths {
		// #nosec G304 -- path comes from operator-configured descriptors path.
		data, err := os.ReadFile(p)
		if err != nil {
			return Loaded{}, errors.Trace(err)
		}
		all.Write(data)

		descs, err := decodeDescriptors(data)
		if err != nil {
			return Loaded{}, errors.Annotatef(err, "parsing %q", p)
		}
		for i := range descs {
			descs[i].Source = fmt.Sprintf("%s#%d", p, i)
		}
		out.Descriptors = append(out.Descriptors, descs...)
	}
	out.Hash = canonical.Digest(all.Bytes())
	return out, nil
}

func descriptorFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var paths []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Strings(paths)
	return paths, nil
}

// decodeDescriptors reads every YAML document in data. Each document is
// either one descriptor or a list of descriptors.
func decodeDescriptors(data []byte) ([]Descriptor, error) {
	var kinds []yaml.Kind
	scan := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := scan.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, documentKind(&doc))
	}

	var out []Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	for i, kind := range kinds {
		switch kind {
		case yaml.SequenceNode:
			var descs []Descriptor
			if err := dec.Decode(&descs); err != nil {
				return nil, errors.Annotatef(err, "document %d", i)
			}
			out = append(out, descs...)
		case yaml.MappingNode:
			var desc Descriptor
			if err := dec.Decode(&desc); err != nil {
				return nil, errors.Annotatef(err, "document %d", i)
			}
			out = append(out, desc)
		case 0:
			var skip yaml.Node
			if err := dec.Decode(&skip); err != nil {
				return nil, errors.Annotatef(err, "document %d", i)
			}
		default:
			return nil, errors.NotValidf("document %d is neither a descriptor nor a list of descriptors", i)
		}
	}
	return out, nil
}

// documentKind returns the kind of the document's root node, or 0 for an
// empty or null document.
func documentKind(doc *yaml.Node) yaml.Kind {
	if len(doc.Content) == 0 {
		return 0
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return 0
	}
	return root.Kind
}
