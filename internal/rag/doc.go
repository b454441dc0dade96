// Package rag implements the retrieval-augmented query pipeline over a
// client's archived veille reports.
//
// A turn flows through a fixed sequence: resolve the client, load
// conversation history, reformulate follow-up questions into standalone
// ones, embed and retrieve a wide candidate set, narrow it with an LLM
// relevance filter (strict date matching when the question names a
// date), generate a cited answer, reconcile which citations the answer
// actually used, and persist the turn atomically.
//
// Two failure classes are deliberately non-fatal: a failed
// reformulation falls back to the original question, and an unusable
// relevance-filter response falls back to ranking by raw similarity.
// Everything else aborts the turn with ErrUpstream and persists
// nothing.
package rag
