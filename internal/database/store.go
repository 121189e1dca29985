package database

import (
	"context"
	"log/slog"

	"consultation-relay/internal/booking"
	"consultation-relay/internal/config"
)

// OpenStore opens the booking store selected by BOOKING_STORE. The
// returned func closes it.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (booking.Store, func(), error) {
	if cfg.BookingStore == config.StorePostgres {
		db, err := Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		store := NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Database connection established", "host", cfg.DBHost, "db", cfg.DBName)
		return store, func() { _ = db.Close() }, nil
	}

	db, err := OpenBadger(cfg.BadgerPath)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Booking store opened", "path", cfg.BadgerPath)
	return NewBadgerStore(db, log), func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}, nil
}
