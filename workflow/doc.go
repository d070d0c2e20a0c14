// Package workflow holds the engine core: the workflow definition store,
// structural validation, the dependency scheduler and the ready-queue
// executor that drives step dispatch across a full run.
package workflow
