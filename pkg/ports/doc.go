/*
Package ports defines the driven ports (interfaces) of the FlowForge build
engine.

These interfaces keep the pipeline independent of the job store, the vendor
toolchain, the controller protocol and version control, so each can be
replaced by an in-memory fake in tests.

# Key Interfaces

  - JobQueue: durable build jobs with an atomic claim.
  - DeployRecordStore and TargetRegistry: deploy bookkeeping and the
    read-only authorization inputs.
  - ToolchainSession: one stateful session with the vendor build tool.
  - ControllerDialer: opens device connections for the deploy state machine.
  - DistributedLocker: serializes deploys to one controller across workers.
  - Repository: clones and commits the project sources.
*/
package ports
