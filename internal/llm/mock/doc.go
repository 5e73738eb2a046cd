// Package mock provides deterministic stand-ins for the chat model and embedder.
//
// Embedder maps text to a bag-of-words vector, so texts sharing words are
// close under cosine similarity. Model echoes its prompt back (or a fixed
// reply) and honours streaming callbacks, which lets tests check that
// retrieved context reached the model without calling a hosted service.
package mock
