package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmbuddy/internal/config"
	"lmbuddy/internal/hotkey"
	"lmbuddy/pkg/buddytypes"
)

type orderedService struct {
	name    string
	log     *[]string
	initErr error
	stopErr error
}

func (s *orderedService) Name() string { return s.name }

func (s *orderedService) Initialize() error {
	*s.log = append(*s.log, "init:"+s.name)
	return s.initErr
}

func (s *orderedService) Shutdown() error {
	*s.log = append(*s.log, "shutdown:"+s.name)
	return s.stopErr
}

func TestRegistry(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.RegisterService(&orderedService{name: "a", log: &calls}))
	require.NoError(t, r.RegisterService(&orderedService{name: "b", log: &calls, stopErr: errors.New("stuck")}))
	assert.Error(t, r.RegisterService(&orderedService{name: "a", log: &calls}))

	svc, err := r.GetService("b")
	require.NoError(t, err)
	assert.Equal(t, "b", svc.Name())
	_, err = r.GetService("missing")
	assert.Error(t, err)

	require.NoError(t, r.InitializeAll())
	err = r.ShutdownAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")

	assert.Equal(t, []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}, calls)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistryInitializeStopsAtFailure(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.RegisterService(&orderedService{name: "a", log: &calls, initErr: errors.New("broken")}))
	require.NoError(t, r.RegisterService(&orderedService{name: "b", log: &calls}))

	err := r.InitializeAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize service a")
	assert.Equal(t, []string{"init:a"}, calls)
}

type idleBackend struct{}

func (idleBackend) IsPressed(hotkey.Combo) (bool, error) { return false, nil }

type serviceSpeaker struct {
	fakeSpeaker
	initialized bool
}

func (s *serviceSpeaker) Name() string       { return "speech" }
func (s *serviceSpeaker) Initialize() error { s.initialized = true; return nil }
func (s *serviceSpeaker) Shutdown() error   { return nil }

// testRuntimeConfig avoids loading a tokenizer encoding.
func testRuntimeConfig() *config.Config {
	cfg := config.Defaults()
	cfg.TokenizerModel = ""
	return cfg
}

func TestRuntimeLifecycle(t *testing.T) {
	cfg := testRuntimeConfig()
	speaker := &serviceSpeaker{}

	rt, err := NewRuntime(RuntimeOptions{
		Config:  config.NewStaticStore(cfg),
		Speaker: speaker,
		Backend: idleBackend{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"config", "messages", "speech"}, rt.Registry.Names())

	require.NoError(t, rt.Init())
	require.NoError(t, rt.Init())
	assert.True(t, speaker.initialized)
	require.NotNil(t, rt.Engine)
	require.NotNil(t, rt.Counter)
	require.NotNil(t, rt.Listener)

	ok, err := rt.StartHotkey()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, buddytypes.ListenerListening, rt.Engine.HotkeyStatus().Listener)
	assert.Equal(t, "ctrl+shift+f", rt.Engine.HotkeyStatus().Combo)

	require.NoError(t, rt.Shutdown())
	assert.True(t, rt.Stop.IsSet())
	assert.Equal(t, buddytypes.ListenerStopped, rt.Engine.HotkeyStatus().Listener)

	// the channel is closed, so later posts are dropped
	rt.Channel.Post(buddytypes.Info{Text: "late"})
	assert.Equal(t, 0, rt.Channel.Len())
}

func TestRuntimeInvalidHotkey(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.Hotkey = "ctrl+shift"

	rt, err := NewRuntime(RuntimeOptions{Config: config.NewStaticStore(cfg), Backend: idleBackend{}})
	require.NoError(t, err)
	require.NoError(t, rt.Init())
	t.Cleanup(func() { _ = rt.Shutdown() })

	ok, err := rt.StartHotkey()
	assert.False(t, ok)
	var verr *hotkey.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRuntimeWithoutBackend(t *testing.T) {
	_, err := NewRuntime(RuntimeOptions{})
	assert.Error(t, err)

	rt, err := NewRuntime(RuntimeOptions{Config: config.NewStaticStore(testRuntimeConfig())})
	require.NoError(t, err)
	require.NoError(t, rt.Init())
	t.Cleanup(func() { _ = rt.Shutdown() })

	assert.Nil(t, rt.Listener)
	_, err = rt.StartHotkey()
	assert.Error(t, err)
}
