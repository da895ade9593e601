// Package feedback closes the learning loop. Reviewer verdicts are
// recorded fire-and-forget into batches; the learner turns sealed batches
// into rule performance counters, base confidence nudges and a new weight
// snapshot, exactly once per batch. A cron scheduler drives periodic
// passes in long-running deployments.
package feedback
