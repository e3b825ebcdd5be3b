package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"visawh/internal/modkit"
	"visawh/internal/modkit/module"
	"visawh/internal/platform/config"
	"visawh/internal/platform/logger"
	"visawh/internal/platform/store"

	builddom "visawh/internal/services/build/domain"
	buildmod "visawh/internal/services/build/module"
	factsmod "visawh/internal/services/facts/module"
	publishmod "visawh/internal/services/publish/module"
	validatemod "visawh/internal/services/validate/module"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		fData       = flag.String("data", "", "raw extract root (overrides CORE_BUILD_DATA_ROOT)")
		fOut        = flag.String("out", "", "warehouse root (overrides CORE_BUILD_OUT_ROOT)")
		fAliases    = flag.String("aliases", "", "alias map yaml (default: embedded map)")
		fDriftFatal = flag.Bool("drift-fatal", false, "fail the build on schema drift")
		fMetrics    = flag.String("metrics", "", "write a prometheus textfile after the run")
	)
	flag.Parse()

	root := config.New()
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger and publish target are both optional; nothing is opened without a DBURL
	st, err := store.Open(ctx, store.FromConfig(root, "build"), store.WithLogger(*l))
	if err != nil {
		l.Error().Err(err).Msg("store.Open failed")
		return 1
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	if err := st.Guard(ctx); err != nil {
		l.Error().Err(err).Msg("store preflight failed")
		return 1
	}

	// Shared deps for modules
	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	fm, err := factsmod.New(deps)
	if err != nil {
		l.Error().Err(err).Msg("facts module")
		return 1
	}
	vm, err := validatemod.New(deps)
	if err != nil {
		l.Error().Err(err).Msg("validate module")
		return 1
	}
	defer func() { _ = vm.Close() }()
	pm, err := publishmod.New(deps)
	if err != nil {
		l.Error().Err(err).Msg("publish module")
		return 1
	}
	module.Register(fm.Name(), fm.Ports())
	module.Register(vm.Name(), vm.Ports())
	module.Register(pm.Name(), pm.Ports())

	ports := builddom.Ports{
		Facts:     module.MustPortsOf[factsmod.Ports](fm).Builder,
		Validator: module.MustPortsOf[validatemod.Ports](vm).Validator,
	}
	if p := module.MustPortsOf[publishmod.Ports](pm).Publisher; p != nil {
		ports.Publisher = p
	}

	bm, err := buildmod.New(deps, buildmod.Options{
		DataRoot:    *fData,
		OutRoot:     *fOut,
		Aliases:     *fAliases,
		DriftFatal:  *fDriftFatal,
		MetricsFile: *fMetrics,
	}, modkit.WithPorts(ports))
	if err != nil {
		l.Error().Err(err).Msg("build module")
		return 1
	}
	module.Register(bm.Name(), bm.Ports())
	l.Debug().Strs("modules", module.Names()).Bool("ledger", deps.HasLedger()).Msg("modules wired")

	bp, ok := module.PortsAs[buildmod.Ports](bm.Name())
	if !ok {
		l.Error().Msg("build ports not registered")
		return 1
	}
	rep, err := bp.Runner.RunBuild(ctx)
	if err != nil {
		l.Error().Err(err).Str("run_id", rep.RunID).Str("status", string(rep.Status)).Msg("build failed")
		return 1
	}
	l.Info().
		Str("run_id", rep.RunID).
		Str("status", string(rep.Status)).
		Bool("promoted", rep.Promoted).
		Msg("build promoted")
	return 0
}
