package radioswitch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/beacons/pkg/beacons"
)

type fakeSwitch struct {
	mu      sync.Mutex
	enabled bool
	calls   []bool
}

func (f *fakeSwitch) SetRadioEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
	f.calls = append(f.calls, enabled)
	return nil
}

func (f *fakeSwitch) RadioEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSwitch) callLog() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

func startPlugin(t *testing.T, path string, sw *fakeSwitch) *Plugin {
	t.Helper()
	p := New(Config{Path: path, DebounceDelay: 10 * time.Millisecond, Switch: sw})
	require.NoError(t, p.Initialize(context.Background(), beacons.PluginConfig{DataDir: filepath.Dir(path)}))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestPlugin_AppliesFileAtStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio")
	require.NoError(t, os.WriteFile(path, []byte("off\n"), 0644))
	sw := &fakeSwitch{enabled: true}

	p := startPlugin(t, path, sw)

	assert.False(t, sw.RadioEnabled())
	assert.Equal(t, 1, p.Applied())
}

func TestPlugin_FollowsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio")
	sw := &fakeSwitch{enabled: true}
	startPlugin(t, path, sw)

	require.NoError(t, os.WriteFile(path, []byte("disabled"), 0644))
	require.Eventually(t, func() bool { return !sw.RadioEnabled() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("on"), 0644))
	require.Eventually(t, func() bool { return sw.RadioEnabled() }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []bool{false, true}, sw.callLog())
}

func TestPlugin_IgnoresGarbageAndOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radio")
	require.NoError(t, os.WriteFile(path, []byte("maybe"), 0644))
	sw := &fakeSwitch{enabled: true}
	p := startPlugin(t, path, sw)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("off"), 0644))
	time.Sleep(100 * time.Millisecond)

	assert.True(t, sw.RadioEnabled())
	assert.Zero(t, p.Applied())
}

func TestPlugin_DefaultPathUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("0"), 0644))
	sw := &fakeSwitch{enabled: true}

	p := New(Config{Switch: sw})
	require.NoError(t, p.Initialize(context.Background(), beacons.PluginConfig{DataDir: dir}))
	defer p.Shutdown(context.Background())

	assert.False(t, sw.RadioEnabled())
}

func TestPlugin_WithManager(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("off"), 0644))

	m, err := beacons.New(beacons.Config{DataDir: dir, StoreDriver: beacons.StoreFile},
		WithRadioSwitch(Config{DebounceDelay: 10 * time.Millisecond}))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.False(t, m.RadioEnabled())

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("on"), 0644))
	require.Eventually(t, m.RadioEnabled, 2*time.Second, 10*time.Millisecond)
}

func TestParseState(t *testing.T) {
	for _, in := range []string{"on", " Enabled\n", "TRUE", "1"} {
		v, err := ParseState(in)
		require.NoError(t, err, in)
		assert.True(t, v, in)
	}
	for _, in := range []string{"off", "disabled", "false", "0\n"} {
		v, err := ParseState(in)
		require.NoError(t, err, in)
		assert.False(t, v, in)
	}
	_, err := ParseState("sometimes")
	assert.Error(t, err)
}
