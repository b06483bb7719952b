package adapters

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/ports"
	"crate-tool/internal/types"
)

type ConfigFileAdapter struct{}

func NewConfigFileAdapter() ConfigFileAdapter {
	return ConfigFileAdapter{}
}

func (a ConfigFileAdapter) LoadCrateConfig(path string) (types.CrateConfig, error) {
	var config types.CrateConfig
	if err := loadTOML(path, &config); err != nil {
		return types.CrateConfig{}, err
	}
	return config, nil
}

func (a ConfigFileAdapter) LoadRepoConfig(path string) (types.RepoConfig, error) {
	var config types.RepoConfig
	if err := loadTOML(path, &config); err != nil {
		return types.RepoConfig{}, err
	}
	return config, nil
}

// loadTOML decodes path into out, leaving out untouched when the file
// does not exist. Unknown keys are rejected.
func loadTOML(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to read %s", path)).
			WithCause(err)
	}
	meta, err := toml.Decode(string(data), out)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse %s", path)).
			WithCause(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unknown key %q in %s", undecoded[0].String(), path))
	}
	return nil
}

var _ ports.ConfigPort = ConfigFileAdapter{}
