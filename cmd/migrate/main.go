package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/damoang/coinchat/internal/config"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/migration"
	"github.com/damoang/coinchat/internal/repository"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.development.yaml", "config file path")
	seedOnly := flag.Bool("seed-only", false, "only upsert the coin plan catalog")
	listPlans := flag.Bool("list-plans", false, "print the active coin plans and exit")
	dryRun := flag.Bool("dry-run", false, "show what would be migrated without executing")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	config.LoadDotEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *dryRun {
		for _, m := range migration.Models() {
			fmt.Printf("[dry-run] automigrate %T\n", m)
		}
		for _, p := range domain.DefaultCoinPlans() {
			fmt.Printf("[dry-run] upsert plan %s (%d %s, %d coins)\n", p.PlanID, p.Price, p.Currency, p.TotalCoins())
		}
		return
	}

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying DB: %v", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	switch {
	case *listPlans:
		plans, err := repository.NewCoinPlanRepository(db).ListActive(ctx)
		if err != nil {
			log.Fatalf("Failed to list plans: %v", err)
		}
		for _, p := range plans {
			fmt.Printf("%-12s %5d %s  %4d + %4d coins\n", p.PlanID, p.Price, p.Currency, p.BaseCoins, p.BonusCoins)
		}
	case *seedOnly:
		if err := migration.SeedCoinPlans(ctx, db); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
		log.Println("Coin plans seeded")
	default:
		if err := migration.Run(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migration complete")
	}
}
