// Package profiles resolves named vendor profiles declared under the
// `profiles:` key of the config file.
package profiles

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/odosui/agora/pkg/engines"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

const DefaultSystem = "You are a helpful assistant. You answer concisely and to the point."

var ErrProfileNotFound = errors.New("profile not found")

type Profile struct {
	Name           string         `yaml:"-" json:"name" validate:"required"`
	Vendor         engines.Vendor `yaml:"vendor" json:"vendor" validate:"required"`
	Model          string         `yaml:"model" json:"model" validate:"required"`
	System         string         `yaml:"system,omitempty" json:"-"`
	ThinkingBudget int64          `yaml:"thinking_budget,omitempty" json:"-" validate:"gte=0"`
}

// EngineSpec builds the engine spec for this profile.
func (p Profile) EngineSpec(apiKey string, history []engines.Turn) engines.Spec {
	system := p.System
	if system == "" {
		system = DefaultSystem
	}
	return engines.Spec{
		Vendor:         p.Vendor,
		APIKey:         apiKey,
		Model:          p.Model,
		System:         system,
		History:        history,
		ThinkingBudget: p.ThinkingBudget,
	}
}

// Set is an ordered collection of profiles.
type Set struct {
	m *orderedmap.OrderedMap[string, Profile]
}

func NewSet(ps ...Profile) *Set {
	s := &Set{m: orderedmap.New[string, Profile]()}
	for _, p := range ps {
		s.m.Set(p.Name, p)
	}
	return s
}

func (s *Set) Resolve(name string) (Profile, error) {
	if s == nil {
		return Profile{}, errors.Wrapf(ErrProfileNotFound, "%q", name)
	}
	p, ok := s.m.Get(name)
	if !ok {
		return Profile{}, errors.Wrapf(ErrProfileNotFound, "%q", name)
	}
	return p, nil
}

// List returns the profiles in declared order.
func (s *Set) List() []Profile {
	if s == nil {
		return nil
	}
	out := make([]Profile, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.m.Len()
}

func LoadFile(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "profiles: read")
	}
	return Parse(b)
}

// Parse reads the `profiles:` mapping of a YAML document. A document without
// one yields an empty set.
func Parse(data []byte) (*Set, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "profiles: parse")
	}
	set := NewSet()
	node := profilesNode(&doc)
	if node == nil {
		return set, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("profiles: `profiles` is not a mapping")
	}
	validate := validator.New()
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		p, err := decodeProfile(name, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		if err := validate.Struct(p); err != nil {
			return nil, errors.Wrapf(err, "profiles: %s", name)
		}
		set.m.Set(name, p)
	}
	return set, nil
}

func decodeProfile(name string, n *yaml.Node) (Profile, error) {
	var p Profile
	if err := n.Decode(&p); err != nil {
		return Profile{}, errors.Wrapf(err, "profiles: %s", name)
	}
	v, err := engines.ParseVendor(string(p.Vendor))
	if err != nil {
		return Profile{}, errors.Wrapf(err, "profiles: %s (line %d)", name, n.Line)
	}
	p.Vendor = v
	p.Name = name
	return p, nil
}

func profilesNode(doc *yaml.Node) *yaml.Node {
	root := doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "profiles" {
			return root.Content[i+1]
		}
	}
	return nil
}
