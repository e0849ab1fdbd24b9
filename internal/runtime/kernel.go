package runtime

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/graph"
)

// Env exposes the execution buffers a kernel resolves its memory ranges
// against. Ranges in node bodies address (space base + byte offset); nothing
// in the file is a process address.
type Env struct {
	// Arena is the working memory for activations, sized from the model
	// header.
	Arena []byte

	// Constants is the read-only constant pool.
	Constants []byte
}

// Kernel executes one node given its opaque body bytes.
type Kernel func(env *Env, body []byte) error

// KernelRegistry maps runtime opcodes to kernels. Like the compile-side
// emitter registry it is an explicit object, built by the embedder and
// passed to the executor.
type KernelRegistry struct {
	kernels map[graph.OpCode]Kernel
}

// NewKernelRegistry creates an empty kernel registry.
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{kernels: make(map[graph.OpCode]Kernel)}
}

// Register associates an opcode with a kernel.
func (r *KernelRegistry) Register(op graph.OpCode, k Kernel) {
	r.kernels[op] = k
}

// Lookup returns the kernel for op.
func (r *KernelRegistry) Lookup(op graph.OpCode) (Kernel, error) {
	k, ok := r.kernels[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKernel, op)
	}
	return k, nil
}
