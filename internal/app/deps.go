// Package app opens the storage stack described by the configuration. It is
// shared by the server and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"handsup/backend/internal/config"
	"handsup/backend/internal/storage"
	"handsup/backend/internal/storage/memstore"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Deps are the opened storage dependencies.
type Deps struct {
	Gateway *storage.Gateway
	DB      *gorm.DB // nil for the memory driver

	closers []func() error
}

// Close releases every connection in reverse opening order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Deps) onClose(f func() error) { d.closers = append(d.closers, f) }

// Open connects the repository and the change feed and runs migrations.
func Open(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{}

	repo, err := d.openRepository(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	feed, err := d.openFeed(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Gateway = storage.NewGateway(repo, feed)
	slog.Info("storage ready", "db", cfg.DBDriver, "feed", cfg.Feed)
	return d, nil
}

func (d *Deps) openRepository(cfg *config.Config) (storage.Repository, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "memory":
		return memstore.New(), nil
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}

	level := logger.Warn
	if cfg.IsProd() {
		level = logger.Error
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	d.onClose(sqlDB.Close)
	if cfg.DBDriver == "sqlite" {
		// sqlite allows one writer
		sqlDB.SetMaxOpenConns(1)
	}
	d.DB = db

	repo := storage.NewGormRepository(db)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return repo, nil
}

func (d *Deps) openFeed(ctx context.Context, cfg *config.Config) (storage.Feed, error) {
	switch cfg.Feed {
	case "local":
		return storage.NewLocalFeed(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := rdb.Ping(pingCtx).Result(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.onClose(rdb.Close)
		return storage.NewRedisFeed(rdb), nil
	case "postgres":
		if d.DB == nil {
			return nil, errors.New("the postgres feed needs the postgres db driver")
		}
		feed := storage.NewPGFeed(d.DB, cfg.DBDSN)
		d.onClose(feed.Close)
		return feed, nil
	default:
		return nil, fmt.Errorf("unknown feed %q", cfg.Feed)
	}
}
