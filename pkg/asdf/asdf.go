// Package asdf reads and writes slice transforms as an ASDF-style document:
// a YAML tree preceded by #ASDF header comments and closed by the "..."
// document end marker, with the transforms stored under the top-level key "model".
package asdf

import (
	"bytes"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"miriwcs/pkg/channel"
	"miriwcs/pkg/poly"
	"miriwcs/pkg/transform"
)

const header = "#ASDF 1.0.0\n#ASDF_STANDARD 1.1.0\n%YAML 1.1\n---\n"

var (
	// ErrNoModel is returned when a file has no top-level "model" key
	ErrNoModel = errors.New("asdf: no model in tree")

	// ErrUnsupported is returned for sub-models that have no serialized form
	ErrUnsupported = errors.New("asdf: unsupported model type")
)

// Model types in the serialized tree
const (
	TypeChebyshev2D = "chebyshev2d"
	TypeConst1D     = "const1d"
)

// ModelSpec is the serialized form of one sub-model
type ModelSpec struct {
	Type      string    `yaml:"type"`
	XDegree   int       `yaml:"xDegree,omitempty"`
	YDegree   int       `yaml:"yDegree,omitempty"`
	Coeffs    []float64 `yaml:"coefficients,omitempty"`
	Fixed     []bool    `yaml:"fixed,omitempty"`
	XDomain   []float64 `yaml:"xDomain,omitempty"`
	YDomain   []float64 `yaml:"yDomain,omitempty"`
	Amplitude float64   `yaml:"amplitude,omitempty"`
}

// Region is the serialized transform of one slice
type Region struct {
	ID      int         `yaml:"id"`
	Channel int         `yaml:"channel,omitempty"`
	Bounds  []int       `yaml:"bounds,omitempty,flow"`
	Inputs  int         `yaml:"inputs"`
	Mapping []int       `yaml:"mapping,flow"`
	Models  []ModelSpec `yaml:"models"`
}

// Tree is the value stored under "model"
type Tree struct {
	Reference string   `yaml:"reference,omitempty"`
	Regions   []Region `yaml:"regions"`
}

type document struct {
	Model *Tree `yaml:"model"`
}

// ReadModel opens filename and returns the tree stored under "model".
func ReadModel(filename string) (*Tree, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read model file")
	}
	tree, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", filename)
	}
	return tree, nil
}

// Decode parses an ASDF-style document. The header comments and directives
// before the document start marker, and anything after the document end marker
// (binary blocks), are ignored.
func Decode(data []byte) (*Tree, error) {
	if bytes.HasPrefix(data, []byte("---")) {
		data = data[3:]
	} else if i := bytes.Index(data, []byte("\n---")); i >= 0 {
		data = data[i+4:]
	}
	if i := endMarker(data); i >= 0 {
		data = data[:i]
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse YAML tree")
	}
	if doc.Model == nil {
		return nil, ErrNoModel
	}
	return doc.Model, nil
}

// endMarker returns the offset of the first line that is exactly "...", or -1.
func endMarker(data []byte) int {
	for off := 0; off < len(data); {
		line := data[off:]
		next := len(data)
		if j := bytes.IndexByte(line, '\n'); j >= 0 {
			line = line[:j]
			next = off + j + 1
		}
		if string(bytes.TrimSuffix(line, []byte("\r"))) == "..." {
			return off
		}
		off = next
	}
	return -1
}

// WriteModel stores tree under "model" in filename.
func WriteModel(filename string, tree *Tree) error {
	data, err := Encode(tree)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "write model file")
	}
	return nil
}

// Encode renders tree as an ASDF-style document.
func Encode(tree *Tree) ([]byte, error) {
	body, err := yaml.Marshal(document{Model: tree})
	if err != nil {
		return nil, errors.Wrap(err, "marshal model tree")
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	buf.Write(body)
	buf.WriteString("...\n")
	return buf.Bytes(), nil
}

// FromSlices builds a tree from fitted slices, ordered by identifier.
func FromSlices(referencePath string, slices map[int]*channel.SliceModels) (*Tree, error) {
	ids := make([]int, 0, len(slices))
	for id := range slices {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	tree := &Tree{Reference: referencePath}
	for _, id := range ids {
		sm := slices[id]
		model, err := sm.Transform()
		if err != nil {
			return nil, errors.Wrapf(err, "slice %d", id)
		}
		region, err := encodeCompound(id, model)
		if err != nil {
			return nil, err
		}
		b := sm.Region.Bounds
		region.Channel = sm.Region.Channel
		region.Bounds = []int{b.RowMin, b.RowMax, b.ColMin, b.ColMax}
		tree.Regions = append(tree.Regions, region)
	}
	return tree, nil
}

// FromModels builds a tree from composed transforms, ordered by identifier.
func FromModels(models map[int]*transform.Compound) (*Tree, error) {
	ids := make([]int, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	tree := &Tree{}
	for _, id := range ids {
		region, err := encodeCompound(id, models[id])
		if err != nil {
			return nil, err
		}
		tree.Regions = append(tree.Regions, region)
	}
	return tree, nil
}

// Transforms rebuilds the identifier -> transform mapping.
func (t *Tree) Transforms() (map[int]*transform.Compound, error) {
	out := make(map[int]*transform.Compound, len(t.Regions))
	for _, r := range t.Regions {
		if _, ok := out[r.ID]; ok {
			return nil, errors.Errorf("region %d appears twice", r.ID)
		}
		subs := make([]transform.Model, 0, len(r.Models))
		for i, spec := range r.Models {
			m, err := decodeModel(spec)
			if err != nil {
				return nil, errors.Wrapf(err, "region %d model %d", r.ID, i)
			}
			subs = append(subs, m)
		}
		c, err := transform.NewCompound(r.Inputs, r.Mapping, subs...)
		if err != nil {
			return nil, errors.Wrapf(err, "region %d", r.ID)
		}
		out[r.ID] = c
	}
	return out, nil
}

func encodeCompound(id int, c *transform.Compound) (Region, error) {
	region := Region{ID: id, Inputs: c.Inputs(), Mapping: append([]int(nil), c.Mapping...)}
	for i, m := range c.Models {
		spec, err := encodeModel(m)
		if err != nil {
			return Region{}, errors.Wrapf(err, "region %d model %d", id, i)
		}
		region.Models = append(region.Models, spec)
	}
	return region, nil
}

func encodeModel(m transform.Model) (ModelSpec, error) {
	switch m := m.(type) {
	case transform.Surface:
		return ModelSpec{
			Type:    TypeChebyshev2D,
			XDegree: m.Poly.XDegree,
			YDegree: m.Poly.YDegree,
			Coeffs:  m.Poly.Coeffs,
			Fixed:   m.Poly.Fixed,
			XDomain: m.Poly.XDomain,
			YDomain: m.Poly.YDomain,
		}, nil
	case transform.Const1D:
		return ModelSpec{Type: TypeConst1D, Amplitude: m.Amplitude}, nil
	default:
		return ModelSpec{}, errors.Wrapf(ErrUnsupported, "%T", m)
	}
}

func decodeModel(spec ModelSpec) (transform.Model, error) {
	switch spec.Type {
	case TypeChebyshev2D:
		p := poly.NewChebyshev2D(spec.XDegree, spec.YDegree)
		if len(spec.Coeffs) != len(p.Coeffs) {
			return nil, errors.Errorf("chebyshev2d(%d,%d) needs %d coefficients, got %d",
				spec.XDegree, spec.YDegree, len(p.Coeffs), len(spec.Coeffs))
		}
		copy(p.Coeffs, spec.Coeffs)
		copy(p.Fixed, spec.Fixed)
		p.XDomain = spec.XDomain
		p.YDomain = spec.YDomain
		return transform.Surface{Poly: p}, nil
	case TypeConst1D:
		return transform.Const1D{Amplitude: spec.Amplitude}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%q", spec.Type)
	}
}
