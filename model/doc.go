// Package model defines the provider-agnostic abstractions for the language
// models backing agents under simulation.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight scripting for tests (MockModel)
//
// Providers (model/openai, model/anthropic) implement the Model interface so
// agents stay decoupled from vendor SDKs.
package model
