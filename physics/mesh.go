package physics

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// MeshLoader resolves mesh asset paths referenced by mesh colliders.
type MeshLoader interface {
	LoadMesh(path string) (*MeshData, error)
}

// MeshLibrary is an in-memory MeshLoader. Meshes are registered directly or
// read from YAML files on first use.
type MeshLibrary struct {
	meshes map[string]*MeshData
}

func NewMeshLibrary() *MeshLibrary {
	return &MeshLibrary{meshes: make(map[string]*MeshData)}
}

func (l *MeshLibrary) Register(path string, mesh *MeshData) {
	if l.meshes == nil {
		l.meshes = make(map[string]*MeshData)
	}
	l.meshes[path] = mesh
}

type meshSpec struct {
	Vertices [][3]float64 `yaml:"vertices"`
	Indices  []uint32     `yaml:"indices"`
}

func (l *MeshLibrary) LoadMesh(path string) (*MeshData, error) {
	if m, ok := l.meshes[path]; ok {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("physics: load mesh %s: %w", path, err)
	}
	mesh, err := ParseMesh(data)
	if err != nil {
		return nil, fmt.Errorf("physics: parse mesh %s: %w", path, err)
	}
	l.Register(path, mesh)
	return mesh, nil
}

// ParseMesh decodes a YAML mesh document with `vertices` and `indices`.
func ParseMesh(data []byte) (*MeshData, error) {
	var spec meshSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if len(spec.Indices)%3 != 0 {
		return nil, fmt.Errorf("index count %d is not a multiple of 3", len(spec.Indices))
	}
	mesh := &MeshData{
		Vertices: make([]mgl64.Vec3, len(spec.Vertices)),
		Indices:  spec.Indices,
	}
	for i, v := range spec.Vertices {
		mesh.Vertices[i] = mgl64.Vec3{v[0], v[1], v[2]}
	}
	for _, idx := range mesh.Indices {
		if int(idx) >= len(mesh.Vertices) {
			return nil, fmt.Errorf("index %d out of range (%d vertices)", idx, len(mesh.Vertices))
		}
	}
	return mesh, nil
}
