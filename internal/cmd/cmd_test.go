package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

type env struct {
	mr         *miniredis.Miniredis
	configPath string
	svc        *application.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	body := fmt.Sprintf(`
upstream:
  url: http://localhost:9000
redis:
  addr: %s
ratelimit:
  store: redis
  failure_policy: closed
  policies:
    - route: /login
      preset: auth
    - route: "*"
      max_requests: 100
      window_seconds: 60
logging:
  level: error
`, mr.Addr())
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc, err := application.NewService(application.Config{
		Store:         infra.NewRedisCounterStore(rdb),
		FailurePolicy: domain.FailClosed,
	})
	require.NoError(t, err)

	return &env{mr: mr, configPath: path, svc: svc}
}

func (e *env) hit(t *testing.T, identity, route string, max, n int) {
	t.Helper()
	policy := domain.Policy{RoutePattern: route, MaxRequests: max, Window: time.Minute}
	if route == "/login" {
		policy.Window = 5 * time.Minute
	}
	for i := 0; i < n; i++ {
		e.svc.Check(context.Background(), identity, policy)
	}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", e.configPath))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPoliciesCmd_YAML(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "policies", "--output", "yaml")
	require.NoError(t, err)

	var got struct {
		FailurePolicy string `yaml:"failure_policy"`
		Policies      []struct {
			Route       string `yaml:"route"`
			MaxRequests int    `yaml:"max_requests"`
			Window      string `yaml:"window"`
		} `yaml:"policies"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "closed", got.FailurePolicy)
	require.Len(t, got.Policies, 2)
	assert.Equal(t, "/login", got.Policies[0].Route)
	assert.Equal(t, 5, got.Policies[0].MaxRequests)
	assert.Equal(t, "5m0s", got.Policies[0].Window)
}

func TestPoliciesCmd_Table(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "policies")
	require.NoError(t, err)
	assert.Contains(t, out, "/login")
	assert.Contains(t, out, "closed")

	_, err = e.run(t, "policies", "--output", "xml")
	assert.Error(t, err)
}

func TestCountersList_SkipsForeignKeys(t *testing.T) {
	e := newEnv(t)
	e.hit(t, "1.2.3.4", "/login", 5, 3)
	e.mr.HSet("ratelimit:stats:total", "allowed", "3")

	out, err := e.run(t, "counters", "list", "--output", "json")
	require.NoError(t, err)

	var views []counterView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, e.svc.Key("1.2.3.4", "/login"), views[0].Key)
	assert.Equal(t, int64(3), views[0].Count)
	assert.Positive(t, views[0].TTLMs)
}

func TestCountersInspect(t *testing.T) {
	e := newEnv(t)
	e.hit(t, "1.2.3.4", "/login", 5, 3)

	out, err := e.run(t, "counters", "inspect", "--identity", "1.2.3.4", "--route", "/login")
	require.NoError(t, err)
	assert.Contains(t, out, "count:     3")
	assert.Contains(t, out, "remaining: 2")

	_, err = e.run(t, "counters", "inspect", "--identity", "1.2.3.4")
	assert.Error(t, err, "--route is required")
}

func TestCountersReset_Single(t *testing.T) {
	e := newEnv(t)
	e.hit(t, "1.2.3.4", "/login", 5, 2)
	key := e.svc.Key("1.2.3.4", "/login")

	out, err := e.run(t, "counters", "reset", "--identity", "1.2.3.4", "--route", "/login", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete "+key)
	assert.True(t, e.mr.Exists(key))

	_, err = e.run(t, "counters", "reset", "--identity", "1.2.3.4", "--route", "/login")
	require.NoError(t, err)
	assert.False(t, e.mr.Exists(key))
}

func TestCountersReset_All(t *testing.T) {
	e := newEnv(t)
	e.hit(t, "a", "/login", 5, 1)
	e.hit(t, "b", "*", 100, 1)
	e.mr.HSet("ratelimit:stats:total", "allowed", "2")

	_, err := e.run(t, "counters", "reset", "--all")
	require.Error(t, err, "--all without --yes")

	out, err := e.run(t, "counters", "reset", "--all", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete 2 counters")

	out, err = e.run(t, "counters", "reset", "--all", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 counters")
	assert.False(t, e.mr.Exists(e.svc.Key("a", "/login")))
	assert.True(t, e.mr.Exists("ratelimit:stats:total"))
}

func TestCounters_RequireRedis(t *testing.T) {
	t.Setenv("GATEWAY_RATELIMIT_STORE", "memory")
	e := newEnv(t)

	_, err := e.run(t, "counters", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit.store=redis")
}
