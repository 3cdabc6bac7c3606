// Package memory implements the agent's vector-indexed memory store.
//
// Everything the agent learns in a session (user queries, tool
// results, final answers, ingested document chunks) is appended as an
// immutable Item with an embedding and retrieved later by similarity.
//
// Architecture:
//   - Store: vector storage backend (flat positional index by default,
//     chromem-go as an embedded alternative)
//   - Embedder: text-to-vector conversion (OpenAI-compatible endpoint,
//     ONNX model, or deterministic mock for tests)
//   - Manager: the public contract (add, top-k retrieve, save/load),
//     binding an Embedder to a Store and enforcing the dimension and
//     positional-consistency invariants
//
// Concurrency: Manager serializes writes; reads never observe a
// partially written add.
package memory
