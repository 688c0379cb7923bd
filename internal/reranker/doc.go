// Package reranker reorders a retrieval pool by pairwise query relevance.
//
// A Reranker scores every candidate against the query with a Scorer in one
// batched call, sorts stably by descending score and keeps the top k. When
// the Scorer fails the pool order is kept and ErrRerankUnavailable is
// returned next to the results as a soft error.
package reranker
