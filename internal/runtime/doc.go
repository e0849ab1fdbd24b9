// Package runtime loads and executes compiled kmodel binaries.
//
// Load parses and validates the model layout without touching node bodies.
// Executor resolves the file's offset-based addressing against in-memory
// buffers: a working arena for activations, the constant pool, and a body
// buffer sized by the page table. For paged models only the persistent pages
// are loaded up front; swap pages are brought in synchronously, one at a
// time, right before the first node that needs them.
//
// Kernel execution itself is pluggable: nodes dispatch their opaque body
// bytes to whatever kernels the embedder registered.
package runtime
