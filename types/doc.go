// Package types defines the small set of backend-agnostic value types shared
// by the usage recorder, binding resolver, argument buffer engine, and
// staging upload engine.
//
// It intentionally does not attempt to be a complete GPU type system —
// pipeline state, shader reflection, and full texture format enumeration
// belong to the external PipelineReflection and RenderBackend collaborators
// (package backend), not to the render-graph core.
package types
