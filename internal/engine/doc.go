// Package engine runs conversational retrieval turns and corpus ingestion.
//
// A turn flows through the router, the retrieval pool, the reranker, the
// context assembler and finally the generator. Every stage except
// generation degrades instead of failing: the cause is logged, counted in
// convrag_degradations_total and listed on the TurnResult. Only a failed
// generation is returned as an error (ErrGenerationFailed).
//
// The engine keeps no per-corpus state of its own. Callers pass a *Corpus to
// every call and serialize Ingest per corpus.
package engine
