package deploy

import (
	"fmt"

	"github.com/aretw0/flowforge/pkg/domain"
)

// Authorize checks the authorization snapshot attached to a claimed job.
// A job that does not request a deploy is always authorized.
//
// The manual deploy lock wins over everything else. Production targets
// additionally need a recorded approver and must not have been rejected.
func Authorize(job *domain.BuildJob) error {
	if !job.IncludeDeploy {
		return nil
	}
	auth := job.Deploy
	if auth == nil {
		return fmt.Errorf("job %s requests a deploy to %s but carries no authorization", job.ID, job.TargetNetID)
	}
	target := auth.Target
	if target.DeployLocked {
		return &domain.DeployLocked{NetID: target.NetID}
	}
	if auth.Rejected {
		return &domain.ApprovalRequired{NetID: target.NetID, DeployID: auth.DeployID, Rejected: true}
	}
	if target.Production && auth.ApprovedBy == "" {
		return &domain.ApprovalRequired{NetID: target.NetID, DeployID: auth.DeployID}
	}
	return nil
}

// Connection resolves where the deploy of job goes. It returns nil when the
// job does not deploy.
func Connection(job *domain.BuildJob) *domain.ConnectionInfo {
	if !job.IncludeDeploy || job.Deploy == nil {
		return nil
	}
	info := job.Deploy.Target.Connection()
	if info.NetID == "" {
		info.NetID = job.TargetNetID
	}
	if info.NetID == "" {
		return nil
	}
	return &info
}
