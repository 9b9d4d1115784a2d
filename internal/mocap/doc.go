// Package mocap owns the facial motion-capture data model.
//
// Responsibilities: head pose and expression-weight types, the decoded
// frame union produced by the parse layer, and orientation conversion.
//
// Dependency rule: mocap has no dependencies on the parse, store, network
// or receiver layers; they all depend on it.
package mocap
