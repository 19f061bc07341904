// Package model defines the text-generation contract the fabric's agents and
// workflows invoke, with provider adapters under model/anthropic and
// model/openai and an in-memory MockModel for tests.
package model
