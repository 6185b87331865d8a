package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"

	"github.com/desoul99/project-fish/internal/browsersession"
	"github.com/desoul99/project-fish/internal/config"
	"github.com/desoul99/project-fish/internal/contentstore"
	"github.com/desoul99/project-fish/internal/emulation"
	"github.com/desoul99/project-fish/internal/geoip"
	"github.com/desoul99/project-fish/internal/hasher"
	"github.com/desoul99/project-fish/internal/logging"
	"github.com/desoul99/project-fish/internal/metricsserver"
	"github.com/desoul99/project-fish/internal/monitor"
	"github.com/desoul99/project-fish/internal/orchestrator"
	"github.com/desoul99/project-fish/internal/retry"
	"github.com/desoul99/project-fish/internal/storage"
)

// connectRetryAttempts/connectRetryDelay match busconsumer's fixed policy
// for the same spec §7 "transient infra ... 5 attempts, 5s" guarantee.
const (
	connectRetryAttempts = 5
	connectRetryDelay    = 5 * time.Second
)

// wiring holds every process-lifetime collaborator the orchestrator needs,
// plus the teardown for whichever of them own an external connection.
// Grounded on the teacher's serve.go, which builds its (much smaller)
// uploader/store pair inline in ServeOptions.Run; this is that same shape
// generalised to the full scan pipeline's dependency set.
type wiring struct {
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metricsserver.Metrics
	ZapLogger    *zap.Logger

	mongoClient *mongo.Client
	asn         *geoip.ASNLookup
	hashers     *hasher.Pool
}

func (w *wiring) Close(ctx context.Context) {
	if w.mongoClient != nil {
		if err := w.mongoClient.Disconnect(ctx); err != nil {
			w.ZapLogger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	if w.asn != nil {
		if err := w.asn.Close(); err != nil {
			w.ZapLogger.Warn("asn database close failed", zap.Error(err))
		}
	}
	if w.hashers != nil {
		w.hashers.Close()
	}
	_ = w.ZapLogger.Sync()
}

// buildWiring connects to Mongo, Redis and the MaxMind database, loads the
// emulation catalogue, and assembles an Orchestrator ready to run scans.
// Every external connection attempt is wrapped per the teacher's
// fmt.Errorf("...: %w", err) convention (SPEC_FULL.md "Error handling").
func buildWiring(ctx context.Context, cfg config.Config) (*wiring, error) {
	zlog, err := logging.New(logging.Config{
		Level: cfg.Logging.Level,
		Console: logging.ConsoleSink{
			Enabled: cfg.Logging.Console.Enabled,
			Format:  cfg.Logging.Console.Format,
		},
		File: logging.FileSink{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(cfg.Logging.Level),
	}))

	w := &wiring{ZapLogger: zlog}

	var asn *geoip.ASNLookup
	err = retry.Fixed(ctx, connectRetryAttempts, connectRetryDelay, func() error {
		opened, openErr := geoip.Open(cfg.MaxMindDB.ASNDatabasePath)
		if openErr != nil {
			return openErr
		}
		asn = opened
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open asn database: %w", err)
	}
	w.asn = asn

	emuReg, err := emulation.LoadFile(cfg.Emulation.EmulationConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load emulation catalogue: %w", err)
	}

	hashers := hasher.New(hasher.DefaultWorkers)
	w.hashers = hashers

	var mongoClient *mongo.Client
	err = retry.Fixed(ctx, connectRetryAttempts, connectRetryDelay, func() error {
		client, connErr := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.ConnectionURL()))
		if connErr != nil {
			return connErr
		}
		if pingErr := client.Ping(ctx, nil); pingErr != nil {
			client.Disconnect(ctx)
			return pingErr
		}
		mongoClient = client
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	w.mongoClient = mongoClient

	contentRedis := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), DB: cfg.Redis.ContentDatabase})
	certRedis := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), DB: cfg.Redis.CertificateDatabase})
	err = retry.Fixed(ctx, connectRetryAttempts, connectRetryDelay, func() error {
		if pingErr := contentRedis.Ping(ctx).Err(); pingErr != nil {
			return pingErr
		}
		return certRedis.Ping(ctx).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	db := mongoClient.Database(cfg.MongoDB.Database)
	store := contentstore.NewMongoRedisStore(
		contentstore.MongoCollection{Collection: db.Collection(cfg.MongoDB.RequestCollection)},
		contentstore.MongoCollection{Collection: db.Collection(cfg.MongoDB.ContentCollection)},
		contentstore.MongoCollection{Collection: db.Collection(cfg.MongoDB.CertificateCollection)},
		contentstore.NewRedisRefcount(contentRedis),
		contentstore.NewRedisRefcount(certRedis),
	)

	uploader, err := buildUploader(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("build uploader: %w", err)
	}
	if !cfg.Browser.Screenshot {
		uploader = nil
	}

	sessions := browsersession.New(browsersession.Config{
		ExecPath:    cfg.Browser.ExecutablePath,
		DefaultArgs: cfg.Browser.ExecutionArgs,
		MonitorConfig: monitor.Config{
			MaxContentSize:       cfg.Browser.MaxContentSizeBytes,
			MinIdle:              monitor.DefaultConfig().MinIdle,
			FinalizeDrainTimeout: monitor.DefaultConfig().FinalizeDrainTimeout,
		},
	}, hashers, slogger)

	w.Orchestrator = &orchestrator.Orchestrator{
		Sessions:  sessions,
		Emulation: emuReg,
		ASN:       asn,
		Store:     store,
		Hasher:    hashers,
		Uploader:  uploader,
		Logger:    slogger,
	}

	if cfg.Metrics.Enabled {
		w.Metrics = metricsserver.New(cfg.Metrics.Namespace)
	}

	return w, nil
}

func buildUploader(ctx context.Context, cfg config.StorageConfig) (storage.Uploader, error) {
	switch cfg.Backend {
	case "gcs":
		return storage.NewGCSUploader(ctx, cfg.GCSBucket)
	case "local", "":
		dir := cfg.LocalDir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("get working directory: %w", err)
			}
			dir = wd
		}
		return storage.NewLocalUploader(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func deadlinesFrom(cfg config.BrowserConfig) orchestrator.Deadlines {
	return orchestrator.Deadlines{
		Pageload: time.Duration(cfg.PageloadTimeout) * time.Second,
		Browser:  time.Duration(cfg.BrowserTimeout) * time.Second,
	}
}
