// Package embedding provides the embedding and similarity service used by
// clause analysis.
//
// The service turns text into fixed-length vectors through a pluggable
// Provider strategy, caches vectors in two tiers (an in-process
// frequency-evicted map and an optional persistent key/value store), and
// amortizes provider cost by batching queued requests. Cosine similarity and
// top-k ranking are provided for the semantic matching stages, and an
// embedded chromem-go index holds per-clause-type exemplar texts.
//
// Provider failures surface as ErrEmbeddingFailed; callers are expected to
// fall back to non-semantic matching rather than abort analysis.
package embedding
