// Package vectorstore provides the vector database layer behind the response cache.
//
// Backend is the narrow interface the cache needs: collection management,
// upsert, retrieval by id, filtered scrolling and similarity queries.
// QdrantBackend implements it over Qdrant's gRPC API; MemoryBackend is an
// in-process implementation for tests and local development.
//
// ConnectionManager finds a reachable endpoint at runtime. It tries the
// configured URL first, then localhost on ports 6334, 6335 and 6336, probing
// each with ListCollections under a short timeout. The first healthy endpoint
// is cached for the life of the process:
//
//	mgr := vectorstore.NewConnectionManager(vectorstore.DefaultConfig(),
//		vectorstore.InstrumentDialer(vectorstore.DialQdrant(apiKey), metrics), nil)
//	backend, err := mgr.Client(ctx)
//	if errors.Is(err, vectorstore.ErrConnectionUnavailable) {
//		// caching disabled
//	}
package vectorstore
