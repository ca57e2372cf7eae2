package test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nvim-rpc/codec"
	"nvim-rpc/loadbalance"
	"nvim-rpc/middleware"
	"nvim-rpc/peertest"
	"nvim-rpc/registry"
	"nvim-rpc/session"
)

// ---- 测试用的编辑器 ----

// startEditor 启动一个假编辑器，"whoami" 返回它的名字
func startEditor(t testing.TB, name string) string {
	t.Helper()
	svr := peertest.NewServer()
	svr.HandleAll(peertest.Editor())
	svr.Handle("whoami", func([]any) (any, any) { return name, nil })
	addr, err := svr.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { svr.Shutdown(3 * time.Second) })
	return addr
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestFullIntegrationWithEtcd 完整端到端测试
// 链路: Registry(etcd) → LB → Session → Middleware → Conn → Protocol → Codec → 编辑器
func TestFullIntegrationWithEtcd(t *testing.T) {
	endpoint := os.Getenv("ETCD_ENDPOINT")
	if endpoint == "" {
		endpoint = "127.0.0.1:2379"
	}

	// 1. 连接 etcd
	reg, err := registry.NewEtcdRegistry([]string{endpoint}, testr.New(t))
	require.NoError(t, err)
	defer reg.Close()

	ctx := testContext(t)
	probe, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, err = reg.Discover(probe, "probe")
	cancel()
	if err != nil {
		t.Skipf("etcd not reachable at %s: %v", endpoint, err)
	}

	// 2. 启动编辑器并注册到 etcd
	addr := startEditor(t, "etcd-editor")
	name := fmt.Sprintf("editor-%d", time.Now().UnixNano())
	require.NoError(t, reg.Register(ctx, registry.Endpoint{Name: name, Addr: addr, Weight: 10}, 10))
	defer reg.Deregister(context.Background(), name, addr)

	// 3. 通过 registry 建立 session，挂载中间件
	s, err := session.NewFromRegistry(ctx, reg, name, &loadbalance.RoundRobinBalancer{},
		session.WithLogger(testr.New(t)),
		session.WithMiddleware(middleware.Logging(testr.New(t)), middleware.Timeout(5*time.Second)))
	require.NoError(t, err)
	defer s.Close()

	// 4. 调用
	version, err := s.CallSync(ctx, "vim_get_vvar", "version")
	require.NoError(t, err)
	// Integers above the fixnum range decode as uint64.
	n, ok := codec.AsInt64(version)
	require.True(t, ok, "version is %T", version)
	assert.Equal(t, int64(1000), n)

	who, err := s.CallSync(ctx, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "etcd-editor", who)
}

// TestMultiEditorRoundRobin 多实例 + 负载均衡
func TestMultiEditorRoundRobin(t *testing.T) {
	ctx := testContext(t)
	reg := registry.NewMemoryRegistry()

	// 1. 启动 2 个编辑器并注册
	for _, name := range []string{"a", "b"} {
		addr := startEditor(t, name)
		require.NoError(t, reg.Register(ctx, registry.Endpoint{Name: "editor", Addr: addr, Weight: 10}, 10))
	}

	// 2. 轮询建立 4 个 session，应该均匀落在两个编辑器上
	bal := &loadbalance.RoundRobinBalancer{}
	counts := map[any]int{}
	for i := 0; i < 4; i++ {
		s, err := session.NewFromRegistry(ctx, reg, "editor", bal)
		require.NoError(t, err)

		who, err := s.CallSync(ctx, "whoami")
		require.NoError(t, err)
		counts[who]++

		// 3. 每个 session 上的并发调用互不干扰
		results := make(chan error, 10)
		for j := 0; j < 10; j++ {
			go func(j int) {
				v, err := s.CallSync(ctx, "nvim_eval", int64(j))
				if err == nil && v != int64(j) {
					err = fmt.Errorf("call %d got %v", j, v)
				}
				results <- err
			}(j)
		}
		for j := 0; j < 10; j++ {
			assert.NoError(t, <-results)
		}
		require.NoError(t, s.Close())
	}

	assert.Equal(t, map[any]int{"a": 2, "b": 2}, counts)
}

// TestConsistentHashAffinity 同一个 workspace 总是连到同一个编辑器
func TestConsistentHashAffinity(t *testing.T) {
	ctx := testContext(t)
	reg := registry.NewMemoryRegistry()
	for _, name := range []string{"a", "b", "c"} {
		addr := startEditor(t, name)
		require.NoError(t, reg.Register(ctx, registry.Endpoint{Name: "editor", Addr: addr, Weight: 1}, 10))
	}

	var first any
	for i := 0; i < 3; i++ {
		s, err := session.NewFromRegistry(ctx, reg, "editor", loadbalance.NewConsistentHashBalancer("/home/user/project"))
		require.NoError(t, err)
		who, err := s.CallSync(ctx, "whoami")
		require.NoError(t, err)
		require.NoError(t, s.Close())

		if i == 0 {
			first = who
		}
		assert.Equal(t, first, who)
	}
}
