// Package layers loads the collision layer matrix from a YAML authoring file.
//
// A file names layers and lists the pairs that must not collide or query:
//
//	names:
//	  player: 1
//	  pickup: 2
//	no_collide:
//	  - [player, pickup]
//	no_query:
//	  - [pickup, 0]
//
// Layers may be referenced by name or by index.
package layers

import (
	"fmt"
	"os"
	"strconv"

	"github.com/milk9111/physbridge/physics"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type File struct {
	Names     map[string]int `yaml:"names"`
	NoCollide [][2]string    `yaml:"no_collide"`
	// NoQuery pairs are [querier, target].
	NoQuery [][2]string `yaml:"no_query"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layers %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("layers %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a layer file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if _, err := f.Matrix(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Layer resolves a name or index.
func (f *File) Layer(ref string) (int, error) {
	if i, ok := f.Names[ref]; ok {
		ref = strconv.Itoa(i)
	}
	i, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("unknown layer %q", ref)
	}
	if i < 0 || i >= physics.MaxLayers {
		return 0, fmt.Errorf("layer %d out of range [0, %d)", i, physics.MaxLayers)
	}
	return i, nil
}

// Matrix builds the layer matrix the file describes, starting from
// everything colliding and querying.
func (f *File) Matrix() (*physics.LayerMatrix, error) {
	m := physics.NewLayerMatrix()
	var errs error
	pairs := func(list [][2]string, set func(a, b int)) {
		for _, p := range list {
			a, errA := f.Layer(p[0])
			b, errB := f.Layer(p[1])
			if errA != nil || errB != nil {
				errs = multierr.Combine(errs, errA, errB)
				continue
			}
			set(a, b)
		}
	}
	pairs(f.NoCollide, func(a, b int) { m.SetCollide(a, b, false) })
	pairs(f.NoQuery, func(a, b int) { m.SetQuery(a, b, false) })
	if errs != nil {
		return nil, errs
	}
	return m, nil
}

// Apply replaces dst's cells with the file's matrix, bumping its revision once.
func (f *File) Apply(dst *physics.LayerMatrix) error {
	m, err := f.Matrix()
	if err != nil {
		return err
	}
	dst.CopyFrom(m)
	return nil
}
