// Package codegen serializes a scheduled, memory-allocated compute graph
// into the kmodel binary format.
//
// The entry point is Serialize: it partitions the node sequence, writes the
// model header and descriptor tables, materializes the constant pool,
// dispatches each compute node to its registered emitter, and backfills the
// node-header table once body sizes are known. When paging is enabled the
// accumulated node headers are additionally packed into fixed-budget memory
// pages so a model larger than physical RAM can execute from a bounded
// working buffer.
//
// Serialization is one-shot and synchronous: it either completes or fails
// with a fatal error, leaving the output stream in an undefined partial
// state the caller must discard.
package codegen
