// Quickfire - input automation engine
// Intercepts keyboard, mouse, XInput and raw HID input, matches chord and
// sequence triggers, and dispatches turbo output through SendInput.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quickfire/internal/api"
	"quickfire/internal/autostart"
	"quickfire/internal/config"
	"quickfire/internal/engine"
	"quickfire/internal/event"
	"quickfire/internal/hid"
	"quickfire/internal/hook"
	"quickfire/internal/inject"
	"quickfire/internal/output"
	"quickfire/internal/proc"
	"quickfire/internal/tray"
	"quickfire/internal/worker"
	"quickfire/internal/xinput"
)

// Exit codes of the service surface.
const (
	exitOK          = 0
	exitConfigError = 2
	exitHookError   = 3
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Config file path (default: per-user config dir)")
	checkOnly  = flag.Bool("check", false, "Validate the config file and exit")
	apiPort    = flag.Int("api-port", 0, "Serve the status API on this loopback port (0 = off)")
	noTray     = flag.Bool("no-tray", false, "Run without the tray icon")
	showVer    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("quickfire version %s\n", version)
		return
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(exitConfigError)
	}

	if *checkOnly {
		fmt.Printf("config ok: %d mappings\n", len(cfgMgr.Snapshot().Mappings))
		return
	}

	os.Exit(runService(cfgMgr))
}

// hookHandler fans hook callbacks out to the engine and the HID store.
type hookHandler struct {
	rt    *engine.Runtime
	store *hid.Store
}

func (h *hookHandler) OnKeyboard(vk uint16, down bool, tsUS uint64) bool {
	return h.rt.OnKeyboard(vk, down, tsUS)
}

func (h *hookHandler) OnMouseButton(b event.MouseButton, down bool, tsUS uint64) bool {
	return h.rt.OnMouseButton(b, down, tsUS)
}

func (h *hookHandler) OnMouseWheel(delta int16, tsUS uint64) {
	h.rt.OnMouseWheel(delta, tsUS)
}

func (h *hookHandler) OnHidReport(dev hook.HidDevice, data []byte, tsUS uint64) {
	h.store.HandleReport(dev, data, tsUS)
}

// statsControl adapts the runtime for the status API.
type statsControl struct {
	rt   *engine.Runtime
	pool *worker.Pool
	cfg  *config.Manager
}

func (c *statsControl) Stats() api.Stats {
	return api.Stats{
		Enabled:            c.rt.Enabled(),
		Paused:             c.rt.Paused(),
		Mappings:           len(c.cfg.Snapshot().Mappings),
		Workers:            c.pool.WorkerCount(),
		DroppedActivations: c.pool.DroppedActivations.Load(),
		StuckKeyCorrected:  c.pool.StuckKeyCorrected.Load(),
		CooldownSuppressed: c.rt.Matcher().CooldownSuppressed.Load(),
	}
}

func (c *statsControl) SetEnabled(on bool) { c.rt.SetEnabled(on) }
func (c *statsControl) SetPaused(on bool)  { c.rt.SetPaused(on) }

func runService(cfgMgr *config.Manager) int {
	log.Printf("quickfire %s starting", version)
	snap := cfgMgr.Snapshot()

	synth := output.New(inject.NewSender())
	pool := worker.NewPool(worker.DefaultWorkerCount(snap.WorkerCount), synth, cfgMgr.Snapshot)
	rt := engine.New(cfgMgr, pool, proc.ForegroundProcessName)

	store := hid.NewStore(snap.HidBaselines, rt)
	cfgMgr.OnReload(func(old, new *config.Snapshot) {
		store.ReplaceBaselines(new.HidBaselines)
	})

	pool.Start()

	hooks := hook.NewManager(&hookHandler{rt: rt, store: store})
	if err := hooks.Start(); err != nil {
		log.Printf("hook install failed: %v", err)
		pool.Stop()
		return exitHookError
	}

	poller := xinput.NewPoller(rt)
	if err := poller.Start(); err != nil {
		log.Printf("xinput poller unavailable: %v", err)
	}

	stop := make(chan struct{})
	if err := cfgMgr.Watch(stop); err != nil {
		log.Printf("config watch unavailable: %v", err)
	}

	if *apiPort != 0 {
		srv := api.NewServer(&statsControl{rt: rt, pool: pool, cfg: cfgMgr})
		go func() {
			if err := srv.Start(*apiPort); err != nil {
				log.Printf("api server error: %v", err)
			}
		}()
	}

	log.Printf("running: %d mappings, %d workers", len(snap.Mappings), pool.WorkerCount())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	shutdown := func() {
		close(stop)
		poller.Stop()
		hooks.Stop()
		pool.Stop()
	}

	if snap.ShowTrayIcon && !*noTray {
		t := tray.New(tray.Callbacks{
			ToggleEnabled: func() bool {
				rt.SetEnabled(!rt.Enabled())
				return rt.Enabled()
			},
			TogglePaused: func() bool {
				rt.SetPaused(!rt.Paused())
				return rt.Paused()
			},
			ToggleAutostart: func() bool {
				if autostart.IsEnabled() {
					if err := autostart.Disable(); err != nil {
						log.Printf("autostart disable: %v", err)
					}
				} else {
					if err := autostart.Enable(); err != nil {
						log.Printf("autostart enable: %v", err)
					}
				}
				return autostart.IsEnabled()
			},
			ConfigPath: cfgMgr.Path(),
			OnQuit:     func() {},
		})
		go func() {
			<-sig
			t.Stop()
		}()
		t.Run() // blocks until Quit
		shutdown()
		return exitOK
	}

	<-sig
	log.Printf("shutting down")
	shutdown()
	return exitOK
}
