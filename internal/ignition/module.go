// Package ignition runs declarative deployment modules: an ordered list of
// contract deployments and contract calls whose progress is journaled so an
// interrupted run resumes where it stopped.
package ignition

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "LSRWA-Express/internal/errors"
)

// FutureKind tells contract deployments and calls apart.
type FutureKind string

const (
	FutureContract FutureKind = "contract"
	FutureCall     FutureKind = "call"
)

// Arg is a module argument. YAML numbers and booleans keep their literal
// text so large integers are never rounded.
type Arg string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: argument must be a scalar", node.Line)
	}
	*a = Arg(node.Value)
	return nil
}

// Future is one step of a module.
type Future struct {
	// ID is unique inside the module. Contract futures default to the
	// contract name, calls to "<target>.<method>".
	ID       string `yaml:"id"`
	Contract string `yaml:"contract"`
	Call     string `yaml:"call"`
	Target   string `yaml:"target"`
	Args     []Arg  `yaml:"args"`
	// Value is the wei amount sent with a call.
	Value string `yaml:"value"`
}

// Kind reports whether the future deploys or calls.
func (f Future) Kind() FutureKind {
	if f.Call != "" {
		return FutureCall
	}
	return FutureContract
}

// Module is a parsed deployment module file.
type Module struct {
	Name    string            `yaml:"module"`
	Futures []Future          `yaml:"futures"`
	Returns map[string]string `yaml:"returns"`

	path string
}

// Path returns the file the module was read from.
func (m *Module) Path() string {
	return m.path
}

// FutureID returns the journal id "<module>#<future id>".
func (m *Module) FutureID(f Future) string {
	return m.Name + "#" + f.ID
}

// Future looks up a future by its local id.
func (m *Module) Future(id string) (Future, bool) {
	for _, f := range m.Futures {
		if f.ID == id {
			return f, true
		}
	}
	return Future{}, false
}

// Load reads a module from path. A bare name is looked up as
// <dir>/<name>.yaml.
func Load(dir, nameOrPath string) (*Module, error) {
	path := nameOrPath
	if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
		path = filepath.Join(dir, nameOrPath+".yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Wrap(xerrors.CodeNotFound, err, fmt.Sprintf("module %s not found", nameOrPath))
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("read module %s", path))
	}
	module, err := Parse(data)
	if err != nil {
		return nil, err
	}
	module.path = path
	return module, nil
}

// Parse decodes and validates a module document.
func Parse(data []byte) (*Module, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var module Module
	if err := decoder.Decode(&module); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse module")
	}
	if err := module.normalize(); err != nil {
		return nil, err
	}
	return &module, nil
}

func (m *Module) normalize() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return invalid("module name is required")
	}
	if strings.Contains(m.Name, "#") {
		return invalid("module name %q must not contain '#'", m.Name)
	}
	if len(m.Futures) == 0 {
		return invalid("module %s has no futures", m.Name)
	}

	contracts := make(map[string]bool)
	seen := make(map[string]bool)
	for i := range m.Futures {
		f := &m.Futures[i]
		switch {
		case f.Contract != "" && f.Call != "":
			return invalid("future %d sets both contract and call", i)
		case f.Contract == "" && f.Call == "":
			return invalid("future %d needs a contract or a call", i)
		}

		if f.Kind() == FutureCall {
			if f.Target == "" {
				return invalid("call %s needs a target", f.Call)
			}
			if !contracts[f.Target] {
				return invalid("call %s targets %q which is not an earlier contract future", f.Call, f.Target)
			}
			if f.ID == "" {
				f.ID = f.Target + "." + f.Call
			}
		} else {
			if f.Target != "" || f.Value != "" {
				return invalid("contract future %s does not take target or value", f.Contract)
			}
			if f.ID == "" {
				f.ID = f.Contract
			}
		}

		if strings.ContainsAny(f.ID, "#@ ") {
			return invalid("future id %q must not contain '#', '@' or spaces", f.ID)
		}
		if seen[f.ID] {
			return invalid("duplicate future id %s", f.ID)
		}
		seen[f.ID] = true

		for _, arg := range f.Args {
			if ref, ok := strings.CutPrefix(string(arg), "@"); ok && !contracts[ref] {
				return invalid("future %s references %q which is not an earlier contract future", f.ID, ref)
			}
		}
		if f.Kind() == FutureContract {
			contracts[f.ID] = true
		}
	}

	for name, id := range m.Returns {
		if !contracts[id] {
			return invalid("return %s references unknown contract future %s", name, id)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf(format, args...))
}
