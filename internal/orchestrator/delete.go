package orchestrator

import (
	"context"
	"fmt"

	"github.com/okranz/kubevapp/internal/task"
)

// DeleteCluster removes the whole cluster vApp as one platform operation.
func (o *NativeOrchestrator) DeleteCluster(ctx context.Context, req DeleteClusterRequest) (*task.Task, error) {
	c, err := o.getCluster(ctx, req.Scope, req.Name)
	if err != nil {
		return nil, err
	}

	t := task.New("delete cluster", fmt.Sprintf("Deleting cluster '%s' (%s)", req.Name, c.ID))
	o.dispatch(ctx, "delete_cluster", t, func(ctx context.Context) {
		if err := o.deleteVApp(ctx, req.Scope, req.Name); err != nil {
			o.log.WithField("cluster", req.Name).WithError(err).Error("cluster deletion failed")
			t.Fail(fmt.Sprintf("error deleting cluster '%s': %v", req.Name, err))
			return
		}
		t.Succeed(fmt.Sprintf("Deleted cluster '%s' (%s)", req.Name, c.ID))
	})
	return t, nil
}
