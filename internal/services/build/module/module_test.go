package module

import (
	"context"
	"testing"
	"time"

	"visawh/internal/modkit"
	"visawh/internal/platform/config"
	kit "visawh/internal/platform/testkit"
	"visawh/internal/services/build/domain"
	factsvc "visawh/internal/services/facts/service"
	"visawh/internal/services/validate/engine"
	valsvc "visawh/internal/services/validate/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfig_Defaults(t *testing.T) {
	o := FromConfig(config.New())
	assert.Equal(t, "data", o.DataRoot)
	assert.Equal(t, "warehouse", o.OutRoot)
	assert.Equal(t, 4, o.Readers)
	assert.Equal(t, 3, o.MaxRetries)
	assert.Equal(t, 30*time.Minute, o.ReadTimeout)
	assert.False(t, o.DriftFatal)
	require.NoError(t, o.Validate())
}

func TestFromConfig_Env(t *testing.T) {
	t.Setenv("CORE_BUILD_DATA_ROOT", "/srv/raw")
	t.Setenv("CORE_BUILD_WORKERS", "12")
	t.Setenv("CORE_BUILD_DRIFT_FATAL", "true")
	t.Setenv("CORE_BUILD_PARTITION_TIMEOUT", "90s")

	o := FromConfig(config.New())
	assert.Equal(t, "/srv/raw", o.DataRoot)
	assert.Equal(t, 12, o.Workers)
	assert.True(t, o.DriftFatal)
	assert.Equal(t, 90*time.Second, o.PartitionTimeout)
}

func TestOptions_MergeAndValidate(t *testing.T) {
	base := FromConfig(config.New())

	o := base.merge(Options{OutRoot: "/tmp/wh", DriftFatal: true})
	assert.Equal(t, "/tmp/wh", o.OutRoot)
	assert.Equal(t, base.DataRoot, o.DataRoot)
	assert.True(t, o.DriftFatal)

	// an empty override never clears a configured flag
	on := base
	on.DriftFatal = true
	assert.True(t, on.merge(Options{}).DriftFatal)

	same := base.merge(Options{OutRoot: base.DataRoot})
	assert.Error(t, same.Validate())

	bad := base
	bad.Workers = 0
	assert.Error(t, bad.Validate())
}

func testPorts(t *testing.T) domain.Ports {
	t.Helper()
	facts, err := factsvc.New(nil)
	require.NoError(t, err)
	return domain.Ports{
		Facts:     facts,
		Validator: valsvc.New(engine.NewParquet(), valsvc.Config{RefWarn: 1, CoverageMin: valsvc.DefaultCoverage()}),
	}
}

func TestNew_RequiresPorts(t *testing.T) {
	deps := modkit.Deps{Cfg: config.New()}
	kit.MustPanic(t, func() { _, _ = New(deps, Options{}) })
	kit.MustPanic(t, func() { _, _ = New(deps, Options{}, modkit.WithPorts(domain.Ports{})) })
}

func TestNew_RunsWithoutLedger(t *testing.T) {
	data, out := t.TempDir(), t.TempDir()
	m, err := New(modkit.Deps{Cfg: config.New()}, Options{DataRoot: data, OutRoot: out}, modkit.WithPorts(testPorts(t)))
	require.NoError(t, err)
	assert.Equal(t, "build", m.Name())
	assert.Equal(t, out, m.Options().OutRoot)

	p, ok := m.Ports().(Ports)
	require.True(t, ok)
	rep, err := p.Runner.RunBuild(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Promoted)
}

func TestNew_BadAliasPath(t *testing.T) {
	_, err := New(modkit.Deps{Cfg: config.New()},
		Options{DataRoot: t.TempDir(), OutRoot: t.TempDir(), Aliases: "/nonexistent/aliases.yml"},
		modkit.WithPorts(testPorts(t)))
	assert.Error(t, err)
}
