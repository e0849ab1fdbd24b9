// Package runtime provides the public API for loading and executing
// compiled kmodel binaries.
//
// Load parses and validates a model; Executor runs it, honoring the page
// table for models larger than physical RAM. Operator kernels are pluggable:
// register one per opcode the model uses.
//
// Example:
//
//	f, _ := os.Open("model.kmodel")
//	defer f.Close()
//
//	model, err := runtime.Load(f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	kernels := runtime.NewKernelRegistry()
//	// ... register kernels for the target ...
//
//	exec, err := runtime.NewExecutor(model, kernels)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := exec.Run(); err != nil {
//	    log.Fatal(err)
//	}
package runtime

import (
	"io"

	internalruntime "github.com/kiln-ml/kiln/internal/runtime"
)

// Model is a parsed kmodel.
type Model = internalruntime.Model

// Executor runs a loaded model's node sequence.
type Executor = internalruntime.Executor

// Env exposes the execution buffers a kernel resolves memory ranges against.
type Env = internalruntime.Env

// Kernel executes one node given its opaque body bytes.
type Kernel = internalruntime.Kernel

// KernelRegistry maps runtime opcodes to kernels.
type KernelRegistry = internalruntime.KernelRegistry

// Load parses a kmodel from a seekable stream and validates its layout.
// The stream must remain open for the life of any Executor built on the
// model.
func Load(rs io.ReadSeeker) (*Model, error) {
	return internalruntime.Load(rs)
}

// NewKernelRegistry creates an empty kernel registry.
func NewKernelRegistry() *KernelRegistry {
	return internalruntime.NewKernelRegistry()
}

// NewExecutor allocates buffers for the model and loads the constant pool
// and every persistent page.
func NewExecutor(m *Model, kernels *KernelRegistry) (*Executor, error) {
	return internalruntime.NewExecutor(m, kernels)
}
