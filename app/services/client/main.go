package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quarrylabs/rollclient/app/services/client/handlers"
	"github.com/quarrylabs/rollclient/foundation/events"
	"github.com/quarrylabs/rollclient/foundation/logger"
	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/database/storage/leveldb"
	"github.com/quarrylabs/rollclient/foundation/rollup/database/storage/memory"
	"github.com/quarrylabs/rollclient/foundation/rollup/genesis"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient/grpcclient"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient/local"
	"github.com/quarrylabs/rollclient/foundation/rollup/state"
	"github.com/quarrylabs/rollclient/foundation/rollup/worker"
)

// build is the git version of this program. It is set using build flags in
// the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("CLIENT")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7280"`
			PublicHost      string        `conf:"default:0.0.0.0:8280"`
		}
		State struct {
			DBPath        string        `conf:"default:zblock/client.db"`
			GenesisPath   string        `conf:"default:zblock/genesis.json"`
			SyncInterval  time.Duration `conf:"default:10s"`
			TxExpiryDelta uint64        `conf:"default:256"`
		}
		Node struct {
			GRPCHost string `conf:"default:0.0.0.0:9280"`
			Local    bool   `conf:"default:false"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "CLIENT"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Rollup Client Support

	// The genesis header anchors the client's partial view of the chain.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	// The client packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// Pick the storage backend. The in-process store supports ephemeral
	// runs where nothing needs to survive a restart.
	var storage database.Storage
	switch cfg.State.DBPath {
	case ":memory:":
		storage = memory.New()
	default:
		storage, err = leveldb.New(cfg.State.DBPath)
		if err != nil {
			return fmt.Errorf("unable to open storage: %w", err)
		}
	}

	// Pick the node transport. The in-process simulator supports offline
	// development against a scripted chain.
	var node nodeclient.Client
	switch {
	case cfg.Node.Local:
		node = local.New(gen.Header)
	default:
		node, err = grpcclient.Dial(cfg.Node.GRPCHost, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("unable to dial node: %w", err)
		}
	}

	// The state value manages the client's view of the chain and provides
	// an API for application support.
	st, err := state.New(state.Config{
		Genesis:       gen,
		Storage:       storage,
		Node:          node,
		TxExpiryDelta: cfg.State.TxExpiryDelta,
		EvHandler:     ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker runs the background synchronization and registers itself
	// with the state.
	worker.Run(st, cfg.State.SyncInterval, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the
	// debug related endpoints. This includes the standard library endpoints.
	debugMux := handlers.DebugMux(build, log)

	// Start the service listening for debug requests. Not concerned with
	// shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Make a channel to listen for an interrupt or terminate signal from
	// the OS. Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this
	// error.
	serverErrors := make(chan error, 1)

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
