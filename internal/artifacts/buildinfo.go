package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"LSRWA-Express/internal/config"
	xerrors "LSRWA-Express/internal/errors"
)

type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

// BuildInfo is the compiler invocation Hardhat records for a set of sources.
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// CompilerVersion returns the version string explorers expect, e.g.
// "v0.8.30+commit.73712a01".
func (b *BuildInfo) CompilerVersion() string {
	version := b.SolcLongVersion
	if version == "" {
		version = b.SolcVersion
	}
	if version == "" || strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

// Optimizer returns the optimizer settings from the standard-JSON input.
func (b *BuildInfo) Optimizer() (config.OptimizerConfig, error) {
	var input struct {
		Settings struct {
			Optimizer config.OptimizerConfig `json:"optimizer"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(b.Input, &input); err != nil {
		return config.OptimizerConfig{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse compiler input settings")
	}
	return input.Settings.Optimizer, nil
}

// BuildInfo loads the build-info referenced by the artifact's .dbg.json file.
func (s *Store) BuildInfo(artifact *Artifact) (*BuildInfo, error) {
	if artifact == nil || artifact.Path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "artifact has no source path")
	}
	dbgPath := strings.TrimSuffix(artifact.Path, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNotFound, err, fmt.Sprintf("read debug file for %s", artifact.ContractName))
	}
	var dbg debugFile
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("parse %s", dbgPath))
	}
	if dbg.BuildInfo == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s does not reference a build-info file", dbgPath))
	}

	infoPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))
	data, err = os.ReadFile(infoPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNotFound, err, fmt.Sprintf("read build-info for %s", artifact.ContractName))
	}
	var info BuildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("parse %s", infoPath))
	}
	if len(info.Input) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s has no compiler input", infoPath))
	}
	return &info, nil
}

// CompilerDrift lists differences between the build-info and the configured
// compiler settings. An empty result means the artifact matches.
func CompilerDrift(info *BuildInfo, want config.SolidityConfig) []string {
	var drift []string
	if want.Version != "" && info.SolcVersion != "" && info.SolcVersion != want.Version {
		drift = append(drift, fmt.Sprintf("compiled with solc %s, configured %s", info.SolcVersion, want.Version))
	}
	optimizer, err := info.Optimizer()
	if err != nil {
		return append(drift, err.Error())
	}
	if optimizer.Enabled != want.Optimizer.Enabled {
		drift = append(drift, fmt.Sprintf("optimizer enabled=%t, configured %t", optimizer.Enabled, want.Optimizer.Enabled))
	} else if want.Optimizer.Enabled && optimizer.Runs != want.Optimizer.Runs {
		drift = append(drift, fmt.Sprintf("optimizer runs=%d, configured %d", optimizer.Runs, want.Optimizer.Runs))
	}
	return drift
}
