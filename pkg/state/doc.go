// Package state persists the records that let an apply span several
// invocations: the paused apply record written when conflicts interrupt an
// apply, the lock that serializes apply and resolve, and the workspace
// record left behind by a completed apply.
package state
