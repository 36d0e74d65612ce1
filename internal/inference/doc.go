// ABOUTME: Package documentation for the inference package
// ABOUTME: Describes the chat client, typed failures, and model admin calls

// Package inference wraps one remote inference endpoint and model identity
// behind a small client.
//
// # Completion
//
// Complete posts a message history plus runtime options to the endpoint's
// chat API and returns the reply text:
//
//	c := inference.NewClient(inference.Endpoint{BaseURL: url, Model: "llama3"}, nil)
//	text, err := c.Complete(ctx, msgs, opts)
//
// The native Ollama chat shape is tried first; on a 404 the client retries
// with the OpenAI-compatible path, which several local servers expose
// instead. Reply bodies are accepted in any of the known response shapes;
// anything else is a malformed-response failure, never a silent coercion.
//
// # Failures
//
// Every failure is a *inference.Error with a Kind: connection, timeout,
// malformed, or cancelled. All are recoverable at the caller's discretion;
// completions have no side effects and are idempotent to retry.
//
// # Model administration
//
// ListModels unions the known list-response shapes across known path
// variants by model identifier. Pull streams NDJSON progress lines through
// a callback; Remove deletes a model. Both are best-effort across the path
// variants local servers actually expose.
package inference
