package codegen

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kiln-ml/kiln/internal/kmodel"
)

// Options configures one serialization run.
type Options struct {
	// Target names the accelerator the model is compiled for.
	Target string `yaml:"target"`

	// EnablePaging emits the page table and packs node bodies into
	// fixed-budget pages so models larger than RAM can execute.
	EnablePaging bool `yaml:"enable_paging"`
}

// DefaultOptions returns the default compile configuration.
func DefaultOptions() Options {
	return Options{
		Target:       "k210",
		EnablePaging: true,
	}
}

// LoadOptions reads options from a YAML file, starting from defaults.
//
//nolint:gosec // G304: path comes from the invoking tool, not untrusted input.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options: %w", err)
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options: %w", err)
	}
	if _, err := opts.TargetID(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// TargetID resolves the target name to its wire identifier.
func (o Options) TargetID() (uint32, error) {
	switch o.Target {
	case "cpu":
		return kmodel.TargetCPU, nil
	case "k210":
		return kmodel.TargetK210, nil
	default:
		return 0, fmt.Errorf("unknown target %q", o.Target)
	}
}
