package profiles

import (
	"bytes"
	"os"
	"strconv"

	"github.com/odosui/agora/pkg/engines"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Editor edits the profiles mapping of a config file in place, keeping
// comments, key order and unrelated settings.
type Editor struct {
	doc  yaml.Node
	path string
}

func NewEditor(path string) (*Editor, error) {
	log.Debug().Str("component", "profiles").Str("path", path).Msg("creating profiles editor")
	e := &Editor{path: path}
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		b = nil
	case err != nil:
		return nil, errors.Wrap(err, "profiles: read")
	}
	if len(bytes.TrimSpace(b)) > 0 {
		if err := yaml.Unmarshal(b, &e.doc); err != nil {
			return nil, errors.Wrap(err, "profiles: parse")
		}
	}
	if e.doc.Kind == 0 {
		e.doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if e.root().Kind != yaml.MappingNode {
		return nil, errors.New("profiles: config root is not a mapping")
	}
	return e, nil
}

func (e *Editor) root() *yaml.Node {
	return e.doc.Content[0]
}

func (e *Editor) profiles(create bool) *yaml.Node {
	if n := profilesNode(&e.doc); n != nil || !create {
		return n
	}
	n := &yaml.Node{Kind: yaml.MappingNode}
	r := e.root()
	r.Content = append(r.Content, scalar("profiles"), n)
	return n
}

// Set creates or updates a profile. Keys the profile does not carry are left
// untouched on existing entries.
func (e *Editor) Set(p Profile) error {
	if p.Name == "" {
		return errors.New("profiles: name is required")
	}
	v, err := engines.ParseVendor(string(p.Vendor))
	if err != nil {
		return err
	}
	if p.Model == "" {
		return errors.New("profiles: model is required")
	}
	ps := e.profiles(true)
	if ps.Kind != yaml.MappingNode {
		return errors.New("profiles: `profiles` is not a mapping")
	}
	node := lookup(ps, p.Name)
	if node == nil || node.Kind != yaml.MappingNode {
		node = &yaml.Node{Kind: yaml.MappingNode}
		setKey(ps, p.Name, node)
	}
	setKey(node, "vendor", scalar(string(v)))
	setKey(node, "model", scalar(p.Model))
	if p.System != "" {
		setKey(node, "system", scalar(p.System))
	}
	if p.ThinkingBudget > 0 {
		setKey(node, "thinking_budget", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(p.ThinkingBudget, 10)})
	}
	return nil
}

func (e *Editor) Delete(name string) error {
	ps := e.profiles(false)
	if ps == nil || !deleteKey(ps, name) {
		return errors.Wrapf(ErrProfileNotFound, "%q", name)
	}
	return nil
}

// Profiles returns the current profiles of the edited document.
func (e *Editor) Profiles() (*Set, error) {
	b, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func (e *Editor) Save() error {
	b, err := e.bytes()
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(e.path, b, 0o644), "profiles: write")
}

func (e *Editor) bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&e.doc); err != nil {
		return nil, errors.Wrap(err, "profiles: encode")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "profiles: encode")
	}
	return buf.Bytes(), nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setKey(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			// keep comments attached to the old value
			value.HeadComment = m.Content[i+1].HeadComment
			value.LineComment = m.Content[i+1].LineComment
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, scalar(key), value)
}

func deleteKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return true
		}
	}
	return false
}
