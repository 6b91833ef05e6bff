// Package scheduler owns the task registry.
//
// Service.Run is one invocation: every registered task is dispatched once, in
// registration order. Trigger repeats Run on a cron spec for hosts without an
// external scheduler.
package scheduler
