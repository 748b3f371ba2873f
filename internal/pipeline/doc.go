// Package pipeline is the stage execution engine.
//
// A run starts from an ordered list of stages. The Scheduler pops the
// front stage, lets it transform the sample, and then asks it whether
// more work is needed. A stage answers through its ChainingPolicy: when
// the policy's Condition holds, the policy hands back a fresh instance of
// the next stage wrapped in an ApprovalRequest. The scheduler's
// InsertionPolicy decides whether the requested stage is appended to the
// queue. The run ends when the queue is empty.
//
// Design decision: requests are gated by a separate InsertionPolicy
// instead of being trusted blindly because:
// 1. Peak extraction feeds itself (search, fit, search again), and a
//    saturation limit guarantees termination on pathological curves
// 2. The gate is the one place to observe or veto dynamic growth
// 3. Stages stay unaware of global run limits
//
// Stages never mutate the sample they receive. Cross-stage state that is
// not part of the curve itself travels in model.FlowMetadata, which the
// scheduler threads from one stage to the next.
//
// BatchProcessor runs many independent pipelines concurrently with
// errgroup. No state is shared between runs.
package pipeline
