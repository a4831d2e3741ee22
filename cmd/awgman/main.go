package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"awgman/pkg/awg"
	"awgman/pkg/config"
	"awgman/pkg/driftwatch"
	"awgman/pkg/firewall"
	"awgman/pkg/lifecycle"
	"awgman/pkg/logging"
	"awgman/pkg/metrics"
	"awgman/pkg/model"
	"awgman/pkg/publicip"
	"awgman/pkg/store"
)

func main() {
	cfg := config.DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := config.LoadFromFile(path, cfg); err != nil {
			logging.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		logging.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		logging.Fatalf("config: %v", err)
	}

	for _, dir := range []string{cfg.ConfigRoot, cfg.RenderedConfigDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			logging.Fatalf("creating %s: %v", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := awg.NewExecBackend()
	backend.AWGPath = cfg.AWGPath
	backend.AWGQuickPath = cfg.AWGQuickPath

	isolator := firewall.NewScriptIsolator()
	isolator.SetupScript = cfg.SetupScript
	isolator.CleanupScript = cfg.CleanupScript

	st := store.New(cfg.ModelPath())
	if err := st.Load(ctx, backend.InterfaceExists); err != nil {
		logging.Fatalf("loading model: %v", err)
	}

	pubIP := cfg.PublicIP
	if pubIP == "" {
		pubIP = publicip.Detect(ctx)
	}

	m := metrics.New()
	drift := driftwatch.New(cfg.RenderedConfigDir(), m.DriftEvents)
	go drift.Run(ctx)

	ctrl := lifecycle.New(lifecycle.Options{
		ConfigDir:            cfg.RenderedConfigDir(),
		PublicIP:             pubIP,
		DefaultPort:          cfg.DefaultPort,
		DefaultSubnet:        cfg.DefaultSubnet,
		DefaultMTU:           cfg.DefaultMTU,
		DefaultDNS:           cfg.DefaultDNS,
		DefaultEnableNAT:     cfg.EnableNAT,
		DefaultBlockLANCIDRs: cfg.BlockLANCIDRs,
		DefaultAutoStart:     cfg.AutoStartServers,
	}, st, backend, isolator, m, drift)
	ctrl.Collector().ActiveThreshold = cfg.ActiveThreshold()

	if cfg.AutoStartServers {
		autoStart(ctx, ctrl, st)
	}
	ctrl.RunningCount(ctx)

	go runMonitor(ctx, ctrl, st, cfg)

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", m.Handler())
		if err := http.ListenAndServe(cfg.HealthAddr, mux); err != nil {
			logging.Warnf("health listener: %v", err)
		}
	}()

	logging.Infof("control plane ready (model %s, public IP %s)", cfg.ModelPath(), pubIP)

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logging.Infof("shutting down")
}

// autoStart brings flagged servers up after the store has reconciled their
// status. Failures are logged per server, never fatal: one broken config
// must not keep the rest down.
func autoStart(ctx context.Context, ctrl *lifecycle.Controller, st *store.Store) {
	var ids []string
	st.View(func(m *model.Model) {
		for _, s := range m.Servers {
			if s.AutoStart && s.Status == model.StatusStopped {
				ids = append(ids, s.ID)
			}
		}
	})
	for _, id := range ids {
		if err := ctrl.Start(ctx, id); err != nil {
			logging.Errorf("auto-start %s: %v", id, err)
		}
	}
}
