package main

import (
	"context"
	"time"

	database "github.com/Armour007/parcelclaims-backend/internal"
	"github.com/Armour007/parcelclaims-backend/internal/config"
)

func main() {
	env := config.Load()
	log := config.NewLogger(env.LogLevel, env.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Connect using the same driver and DSN as the server
	db, err := database.Connect(ctx, env.LedgerDriver, env.LedgerDSN)
	if err != nil {
		log.WithError(err).Fatal("unable to open ledger")
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db)
	for _, name := range applied {
		log.WithField("migration", name).Info("applied migration")
	}
	if err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	if len(applied) == 0 {
		log.Info("ledger schema is up to date")
		return
	}
	log.WithField("count", len(applied)).Info("migrations applied successfully")
}
