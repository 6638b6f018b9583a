package subagent

import "errors"

// Sentinel errors for manager operations.
var (
	ErrRecursiveSpawn  = errors.New("subagent: sub-agents cannot spawn other sub-agents")
	ErrMaxConcurrent   = errors.New("subagent: maximum concurrent sub-agents reached")
	ErrNotFound        = errors.New("subagent: not found")
	ErrAlreadyFinished = errors.New("subagent: already finished")
	ErrCrossSession    = errors.New("subagent: agent belongs to another session")
	ErrNoLauncher      = errors.New("subagent: no launcher configured")
)
