package authorization

import (
	_ "embed"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/smallbiznis/rukun/internal/observability/metrics"
	"golang.org/x/sync/singleflight"
)

//go:embed model.conf
var modelText string

// permissionCache holds the process-wide role to permission mapping. The
// serving enforcer is never mutated: writes go to the adapter and a freshly
// loaded enforcer is swapped in.
type permissionCache struct {
	adapter persist.Adapter
	current atomic.Pointer[casbin.SyncedEnforcer]
	group   singleflight.Group
	metrics *metrics.Metrics
}

func newPermissionCache(adapter persist.Adapter, m *metrics.Metrics) *permissionCache {
	return &permissionCache{adapter: adapter, metrics: m}
}

// enforcer returns the loaded mapping, loading it once when empty.
func (c *permissionCache) enforcer() (*casbin.SyncedEnforcer, error) {
	if e := c.current.Load(); e != nil {
		return e, nil
	}
	v, err, _ := c.group.Do("load", func() (any, error) {
		if e := c.current.Load(); e != nil {
			return e, nil
		}
		return c.reload()
	})
	if err != nil {
		return nil, err
	}
	return v.(*casbin.SyncedEnforcer), nil
}

func (c *permissionCache) reload() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewSyncedEnforcer(m, c.adapter)
	if err != nil {
		return nil, err
	}
	e.EnableAutoSave(false)
	c.current.Store(e)
	c.metrics.RecordPermissionReload()
	return e, nil
}
