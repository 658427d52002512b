package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxel-stream/internal/api"
	"github.com/annel0/voxel-stream/internal/app"
	"github.com/annel0/voxel-stream/internal/auth"
	"github.com/annel0/voxel-stream/internal/config"
	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/observability"
	"github.com/annel0/voxel-stream/internal/storage"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world"
	"github.com/annel0/voxel-stream/internal/world/aperture"
	"github.com/annel0/voxel-stream/internal/world/mesh"
	"github.com/annel0/voxel-stream/internal/world/terrain"
)

const serviceName = "voxel-stream"

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	manager, err := newLoggerManager(cfg.Logging)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer manager.CloseAll()
	logger := manager.GetComponentLogger("server")

	logger.Info("🧊 Запуск %s: уровень %dx%dx%d, сид %d", serviceName,
		cfg.Level.Bounds.X, cfg.Level.Bounds.Y, cfg.Level.Bounds.Z, cfg.Level.Seed)

	if err := run(cfg, manager, logger); err != nil {
		logger.Error("❌ Сервер завершился с ошибкой: %v", err)
		manager.CloseAll()
		os.Exit(1)
	}
	logger.Info("👋 Сервер успешно остановлен")
}

func newLoggerManager(cfg config.LoggingConfig) (*logging.LoggerManager, error) {
	consoleLevel, err := logging.ParseLevel(cfg.ConsoleLevel)
	if err != nil {
		return nil, err
	}
	fileLevel, err := logging.ParseLevel(cfg.FileLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewLoggerManager(cfg.Dir, consoleLevel, fileLevel), nil
}

func run(cfg *config.Config, manager *logging.LoggerManager, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	tp := observability.NoopTracerProvider()
	if cfg.Telemetry.Enabled {
		provider, shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, manager.GetComponentLogger("telemetry"))
		if err != nil {
			logger.Warn("⚠️ Телеметрия недоступна, продолжаем без трассировки: %v", err)
		} else {
			tp = provider
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ХРАНИЛИЩЕ ===
	kind, err := voxel.ParseKind(cfg.Level.StorageKind)
	if err != nil {
		return err
	}
	codec, err := storage.NewCodec(kind, cfg.Storage.Compression)
	if err != nil {
		return fmt.Errorf("ошибка создания кодека: %w", err)
	}
	defer codec.Close()

	chunks, err := storage.Open(cfg, manager.GetComponentLogger("storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := chunks.Close(); err != nil {
			logger.Error("❌ Ошибка закрытия хранилища: %v", err)
		}
	}()

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.EventBus, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	busLogger := manager.GetComponentLogger("eventbus")
	if sub, err := eventbus.StartLoggingListener(bus, busLogger); err != nil {
		logger.Warn("⚠️ Не удалось подписать логгер событий: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	// === УРОВЕНЬ ===
	actx := app.New(manager.GetComponentLogger("pipeline"), nil, tp, observability.NewPipelineMetrics(registry))
	level, err := world.NewLevel(actx, levelConfig(cfg), world.LevelDeps{
		Terrain: newTerrain(cfg.Level),
		Chunks:  chunks,
		Mesher:  mesh.NewFaceCuller(terrain.ColorOf),
		Codec:   codec,
		Kind:    kind,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания уровня: %w", err)
	}

	bridge := eventbus.NewBridge(bus, serviceName, cfg.EventBus.MemoryBuffer, busLogger)
	bridgeSub := level.Events().Subscribe(bridge,
		eventbus.TerrainGeneration, eventbus.LevelFocusUpdates, eventbus.ChunkActivationUpdates)

	exporter := eventbus.NewMetricsExporter(registry, bus, level.Events(), bridge)
	exporter.Start(5 * time.Second)
	defer exporter.Stop()

	// Мост закрывается после остановки уровня, чтобы последние события ушли в шину
	defer func() {
		bridgeSub.Unsubscribe()
		bridge.Close()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("🛑 Остановка конвейера уровня...")
		if err := level.Shutdown(shutdownCtx); err != nil {
			logger.Error("❌ Ошибка остановки уровня: %v", err)
		}
	}()

	// === УПРАВЛЯЮЩИЙ API ===
	signer, err := auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации JWT: %w", err)
	}
	operators, err := auth.OperatorsFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("ошибка загрузки операторов: %w", err)
	}
	if operators.Len() == 0 {
		logger.Warn("⚠️ Операторы не настроены, изменение фокусов через API недоступно")
	}

	server, err := api.NewServer(api.Config{
		Addr:        fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		ServiceName: cfg.Telemetry.ServiceName,
		Level:       level,
		Signer:      signer,
		Operators:   operators,
		Logger:      manager.GetComponentLogger("api"),
		Registry:    registry,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if cfg.Level.SpawnInitialFocus {
		center := vec.New(cfg.Level.Bounds.X/2, cfg.Level.Bounds.Y/2, cfg.Level.Bounds.Z/2)
		id, err := level.SpawnFocus(world.NewFocus(center))
		if err != nil {
			logger.Error("❌ Не удалось создать начальный фокус: %v", err)
		} else {
			logger.Info("🎯 Начальный фокус #%d в чанке %v", id, center)
		}
	}

	logger.Info("✅ Все сервисы запущены")
	logger.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logger.Info("   📈 Метрики: http://localhost:%d/metrics", cfg.Server.GetRESTPort())
	logger.Info("   📡 Активации чанков: ws://localhost:%d/ws/chunks", cfg.Server.GetRESTPort())

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("📡 Получен сигнал завершения, останавливаем сервисы...")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func levelConfig(cfg *config.Config) world.LevelConfig {
	ap := func(a config.ApertureConfig) aperture.Config {
		return aperture.Config{Radius: a.Radius, HeightRadius: a.HeightRadius, MaxConcurrency: a.MaxConcurrency}
	}
	b := cfg.Level.Bounds
	return world.LevelConfig{
		Bounds:  vec.New(b.X, b.Y, b.Z),
		Seed:    cfg.Level.Seed,
		Loaded:  ap(cfg.Apertures.Loaded),
		Meshed:  ap(cfg.Apertures.Meshed),
		Visible: ap(cfg.Apertures.Visible),
	}
}

func newTerrain(cfg config.LevelConfig) terrain.Source {
	if cfg.Terrain == "flat" {
		return terrain.NewFlatPlainsSource(cfg.Seed)
	}
	return terrain.NewPerlinSource(cfg.Seed)
}

// newEventBus выбирает JetStream при заданном URL, иначе шину в памяти
func newEventBus(cfg config.EventBusConfig, logger *logging.Logger) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logger.Info("🚌 Шина событий: в памяти (буфер %d)", cfg.MemoryBuffer)
		return eventbus.NewMemoryBus(cfg.MemoryBuffer), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к JetStream %s: %w", cfg.URL, err)
	}
	logger.Info("🚌 Шина событий: JetStream %s, стрим %s", cfg.URL, cfg.Stream)
	return bus, nil
}
