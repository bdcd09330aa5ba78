package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/herald/admin"
	"github.com/maxpert/herald/cfg"
	"github.com/maxpert/herald/diag"
	"github.com/maxpert/herald/encoding"
	"github.com/maxpert/herald/loop"
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/observe"
	"github.com/maxpert/herald/registry"
	"github.com/maxpert/herald/relay"
	_ "github.com/maxpert/herald/relay/sink"
	"github.com/maxpert/herald/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Heartbeat is the payload of the periodic system event.
type Heartbeat struct {
	Instance  string `msgpack:"instance" json:"instance"`
	Beat      uint64 `msgpack:"beat" json:"beat"`
	Timestamp int64  `msgpack:"ts" json:"ts"`
}

// heartbeatBits is the group 0 event bit the heartbeat subject broadcasts.
const heartbeatBits mask.Code = 1

func main() {
	flag.Parse()

	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("instance", cfg.Config.Instance).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Herald - in-process event broadcasting")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner := loop.New(cfg.Config.LoopQueue)
	loopDone := make(chan error, 1)
	go func() { loopDone <- owner.Run(context.Background()) }()

	reg := registry.Default()
	var (
		subjects map[string]*observe.Subject
		buildErr error
	)
	doErr := owner.Do(ctx, func() {
		subjects, buildErr = buildSubjects(cfg.Config, reg)
	})
	if err := errors.Join(doErr, buildErr); err != nil {
		log.Fatal().Err(err).Msg("Failed to create subjects")
		return
	}
	log.Info().Int("subjects", len(subjects)).Msg("Subjects created")

	var manager *relay.Manager
	if cfg.Config.Relay.Enabled {
		manager, err = startRelay(ctx, owner, subjects)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start relay")
			return
		}
	}

	if cfg.Config.Heartbeat.Enabled {
		go runHeartbeat(ctx, owner, subjects[cfg.Config.Heartbeat.Subject])
	}

	var adminServer *admin.Server
	if cfg.Config.Admin.Enabled {
		adminServer = admin.NewServer(cfg.Config.Admin.Address, cfg.Config.Admin.Port, admin.NewHandlers(collector(owner, reg)))
		if err := adminServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start admin server")
			return
		}
	}

	log.Info().
		Str("instance", cfg.Config.Instance).
		Str("data_dir", cfg.Config.DataDir).
		Bool("relay", manager != nil).
		Msg("Herald started successfully")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if adminServer != nil {
		if err := adminServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop admin server")
		}
	}

	// Subjects are destroyed on the loop before the relay closes its outbox.
	if err := owner.Do(shutdownCtx, func() {
		for _, s := range subjects {
			s.Destroy()
		}
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to destroy subjects")
	}
	owner.Close()
	if err := <-loopDone; err != nil {
		log.Warn().Err(err).Msg("Owner loop stopped with error")
	}

	if manager != nil {
		manager.Stop()
	}
	log.Info().Msg("Herald stopped")
}

// buildSubjects creates the configured subjects. Must run on the owner loop.
func buildSubjects(c *cfg.Configuration, reg *registry.Registry) (map[string]*observe.Subject, error) {
	layout, err := c.Core.Layout()
	if err != nil {
		return nil, err
	}

	subjects := make(map[string]*observe.Subject, len(c.Subjects))
	for _, sc := range c.Subjects {
		s := observe.New(sc.Name,
			observe.WithLayout(layout),
			observe.WithCapacity(c.Core.PoolCapacity),
			observe.WithRegistry(reg),
		)
		if sc.Reserve > 0 {
			s.Reserve(sc.Reserve)
		}
		if sc.Mute != 0 {
			s.Mute(mask.Code(sc.Mute))
		}
		subjects[sc.Name] = s
	}
	return subjects, nil
}

func startRelay(ctx context.Context, owner *loop.Loop, subjects map[string]*observe.Subject) (*relay.Manager, error) {
	encoding.SetCompressionLevel(cfg.Config.Relay.CompressionLevel)

	manager, err := relay.NewManager(relay.ManagerConfig{
		OutboxPath:        cfg.OutboxPath(),
		Subjects:          cfg.Config.Relay.Subjects,
		CompressThreshold: cfg.Config.Relay.CompressThreshold,
		Instance:          cfg.Config.Instance,
		Sinks:             cfg.Config.Relay.Sinks,
	})
	if err != nil {
		return nil, err
	}

	watched := 0
	if err := owner.Do(ctx, func() {
		watched = watchSubjects(manager.Relay(), subjects)
	}); err != nil {
		manager.Stop()
		return nil, err
	}

	if err := manager.Start(); err != nil {
		manager.Stop()
		return nil, err
	}

	log.Info().Int("subjects", watched).Msg("Relay attached")
	return manager, nil
}

// watchSubjects attaches r to every subject it accepts. Must run on the
// owner loop.
func watchSubjects(r *relay.Relay, subjects map[string]*observe.Subject) int {
	watched := 0
	for _, s := range subjects {
		if r.Watch(s, mask.All) {
			watched++
		}
	}
	return watched
}

func runHeartbeat(ctx context.Context, owner *loop.Loop, s *observe.Subject) {
	ticker := time.NewTicker(time.Duration(cfg.Config.Heartbeat.IntervalMS) * time.Millisecond)
	defer ticker.Stop()

	code := s.Layout().Make(0, heartbeatBits)
	var beat uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			beat++
			hb := Heartbeat{Instance: cfg.Config.Instance, Beat: beat, Timestamp: now.UnixNano()}
			if err := owner.Submit(func() { s.Notify(code, hb) }); err != nil {
				log.Debug().Err(err).Msg("Heartbeat dropped")
				return
			}
		}
	}
}

// collector gathers admin reports on the owner loop.
func collector(owner *loop.Loop, reg *registry.Registry) admin.Collector {
	return func(ctx context.Context, pattern string) (diag.Report, error) {
		var (
			rep diag.Report
			err error
		)
		doErr := owner.Do(ctx, func() {
			if pattern == "" {
				rep = diag.Collect(reg)
				return
			}
			rep, err = diag.CollectMatching(reg, pattern)
		})
		if doErr != nil {
			return diag.Report{}, doErr
		}
		return rep, err
	}
}
