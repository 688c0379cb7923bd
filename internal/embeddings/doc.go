// Package embeddings provides the text embedders behind vector indexes.
//
// Three providers are available: FastEmbed runs ONNX models in-process
// (cgo builds only), TEI calls a text-embeddings-inference server, and
// OpenAI talks to any OpenAI-compatible /embeddings endpoint through
// langchaingo. NewProvider picks one from configuration.
package embeddings
