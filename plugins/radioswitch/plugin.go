// Package radioswitch powers the radio on and off from a control file.
//
// The file holds a single word: "on", "enabled", "true" or "1" power the
// radio on; "off", "disabled", "false" or "0" power it off. The plugin applies
// the file once at startup and again after every write, so an operator or a
// system service can toggle advertising with
//
//	echo off > /run/beacond/radio
package radioswitch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/beacons/pkg/beacons"
	"github.com/bft-labs/beacons/pkg/log"
)

// DefaultFileName is used under the data directory when Config.Path is empty.
const DefaultFileName = "radio"

// Switch is the part of the manager the plugin drives.
type Switch interface {
	SetRadioEnabled(enabled bool) error
	RadioEnabled() bool
}

// Config holds configuration options for the radio switch plugin.
type Config struct {
	// Path of the control file. Default: <data dir>/radio
	Path string

	// DebounceDelay is the delay to wait after a file change before applying.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// Switch overrides the manager passed at initialization.
	Switch Switch
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

// Plugin applies the control file to the radio.
type Plugin struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration
	target        Switch
	logger        log.Logger
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	debounce      *time.Timer
	applied       int
}

var _ beacons.Plugin = (*Plugin)(nil)

// New creates a radio switch plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		target:        cfg.Switch,
	}
}

// WithRadioSwitch returns a manager option that registers the plugin.
func WithRadioSwitch(cfg Config) beacons.Option {
	return beacons.WithPlugin(New(cfg))
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "radioswitch"
}

// Initialize applies the current file content and starts watching it.
func (p *Plugin) Initialize(ctx context.Context, cfg beacons.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if p.path == "" {
		p.path = filepath.Join(cfg.DataDir, DefaultFileName)
	}
	if p.target == nil && cfg.Manager != nil {
		p.target = cfg.Manager
	}
	p.mu.Unlock()

	if p.target == nil {
		p.logger.Warn("radio switch disabled: no manager")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	p.apply()

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	p.logger.Info("radio switch watching", log.String("path", p.path))
	return nil
}

// Shutdown stops watching.
func (p *Plugin) Shutdown(context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	return nil
}

// Applied returns how many times the file changed the radio state.
func (p *Plugin) Applied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceApply()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("radio switch watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceApply() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, p.apply)
}

func (p *Plugin) apply() {
	b, err := os.ReadFile(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to read radio switch", log.String("path", p.path), log.Err(err))
		}
		return
	}

	enabled, err := ParseState(string(b))
	if err != nil {
		p.logger.Warn("ignoring radio switch", log.String("path", p.path), log.Err(err))
		return
	}
	if p.target.RadioEnabled() == enabled {
		return
	}
	if err := p.target.SetRadioEnabled(enabled); err != nil {
		p.logger.Error("failed to switch radio", log.Bool("enabled", enabled), log.Err(err))
		return
	}

	p.mu.Lock()
	p.applied++
	p.mu.Unlock()
	p.logger.Info("radio switched", log.Bool("enabled", enabled), log.String("path", p.path))
}

// ParseState parses the control file content.
func ParseState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enabled", "enable", "true", "1":
		return true, nil
	case "off", "disabled", "disable", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("unknown radio state %q", strings.TrimSpace(s))
}
