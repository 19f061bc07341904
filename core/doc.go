// Package core defines the shared vocabulary and entities of AgentFabric:
// capability tags, task and agent status enumerations, message kinds, the
// Message and Task entities, agent descriptors and the ControllerAPI contract
// agents depend on.
//
// The package sits at the bottom of the dependency graph: it imports no
// other AgentFabric package.
package core
