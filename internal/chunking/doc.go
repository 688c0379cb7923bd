// Package chunking splits cleaned documents into retrieval-sized chunks.
//
// A Selector holds an ordered cascade of strategies, from the one that best
// preserves paragraph structure down to plain fixed-width word windows. Each
// strategy runs over the whole input; the first whose chunk count exceeds
// MinChunks is accepted. When none does, the last strategy's output is used.
//
// Accepted chunks are appended under the "chunking" stage to the recovery.Sink
// bound with Selector.Recording.
package chunking
