// Package artifacts reads Hardhat compilation output: contract artifacts,
// their debug files, and the build-info holding the standard-JSON compiler
// input used for explorer verification.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "LSRWA-Express/internal/errors"
)

// Artifact is the per-contract JSON file Hardhat writes under
// artifacts/<sourceName>/<contractName>.json.
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	RawABI           json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`

	// Path is the file the artifact was read from.
	Path string `json:"-"`
	abi  abi.ABI
}

// ABI returns the parsed contract ABI.
func (a *Artifact) ABI() abi.ABI {
	return a.abi
}

// FullyQualifiedName returns "<sourceName>:<contractName>".
func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

// CreationCode decodes the deployment bytecode. Unlinked library
// placeholders are rejected.
func (a *Artifact) CreationCode() ([]byte, error) {
	if strings.Contains(a.Bytecode, "__$") {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("contract %s has unlinked library references", a.ContractName))
	}
	code, err := hexutil.Decode(a.Bytecode)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("decode bytecode of %s", a.ContractName))
	}
	if len(code) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("contract %s has no bytecode, it may be abstract or an interface", a.ContractName))
	}
	return code, nil
}

// Store resolves artifacts inside one Hardhat artifacts directory.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the artifacts directory.
func (s *Store) Root() string {
	return s.root
}

// Load finds an artifact by contract name ("LSRWAExpress") or fully
// qualified name ("contracts/LSRWAExpress.sol:LSRWAExpress").
func (s *Store) Load(name string) (*Artifact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "contract name is empty")
	}

	var path string
	if source, contract, ok := strings.Cut(name, ":"); ok {
		path = filepath.Join(s.root, filepath.FromSlash(source), contract+".json")
		if _, err := os.Stat(path); err != nil {
			return nil, notFound(name, s.root)
		}
	} else {
		matches, err := s.find(name)
		if err != nil {
			return nil, err
		}
		switch len(matches) {
		case 0:
			return nil, notFound(name, s.root)
		case 1:
			path = matches[0]
		default:
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("contract name %s is ambiguous, use a fully qualified name: %s", name, strings.Join(matches, ", ")))
		}
	}
	return readArtifact(path)
}

func (s *Store) find(name string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == name+".json" {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, xerrors.Wrap(xerrors.CodeNotFound, err,
				fmt.Sprintf("artifacts directory %s does not exist, compile the contracts first", s.root))
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan artifacts directory")
	}
	sort.Strings(matches)
	return matches, nil
}

func readArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("read artifact %s", path))
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("parse artifact %s", path))
	}
	if artifact.ContractName == "" || len(artifact.RawABI) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s is not a contract artifact", path))
	}
	parsed, err := abi.JSON(bytes.NewReader(artifact.RawABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("parse ABI in %s", path))
	}
	artifact.abi = parsed
	artifact.Path = path
	return &artifact, nil
}

func notFound(name, root string) error {
	return xerrors.New(xerrors.CodeNotFound,
		fmt.Sprintf("artifact for contract %s not found under %s", name, root))
}
