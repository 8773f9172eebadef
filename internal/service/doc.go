package service

// Package service implements the lifecycle of one deployable service
// instance spread across a set of allocated cluster nodes.
//
// Overview
// A Service is constructed against three collaborators: a cluster
// handing out nodes, a registry recording every instance created in a
// run, and a logger. Construction resolves the node request, allocates
// the nodes, and registers the instance, in that order. What a service
// actually does on a node is not known here. A concrete type brings it
// as a NodeHook and the controller drives the hooks phase by phase.
//
// Data flow:
//
//   Service{cfg}         Cluster               NodeHook
//       |                   |                     |
//   New -> NewSpec          |                     |
//       | Alloc ----------->| nodes               |
//       | Register          |                     |
//       | Start() ----------|-------------------->| StopNode+CleanNode, best effort
//       |                   |                     | StartNode per node
//       | Wait(budget) -----|-------------------->| WaitNode(remaining) per node
//       | Stop() -----------|-------------------->| StopNode per node
//       | Free() ---------->| nodes returned      |
//
// Invariants:
//   - Node operations of one phase run in allocation order, one at a time.
//   - Allocation is exclusive. A node still bound to another service is
//     refused as dirty.
//   - Wait shares a single time budget across all nodes of the call.
//   - Start time is captured on the first Start only, stop time on every
//     Stop.
//   - The instance never frees its nodes on its own, release is explicit.
//
// internal/service/lifecycle_test.go is the best source on how hooks
// plug in.
