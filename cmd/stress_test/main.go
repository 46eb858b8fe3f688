package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockroom/internal/adapter/broadcast"
	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/port"
)

func main() {
	totalRequests := flag.Int("n", 50, "concurrent imports of a single code")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: "warn", Format: "console"})

	ctx := context.Background()

	var store port.LedgerStore
	if cfg.Storage.Driver == config.DriverMemory {
		store = storage.NewMemoryAdapter()
	} else {
		db, err := sql.Open("mysql", cfg.Storage.DSN)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open mysql")
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)

		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			logging.Fatal().Err(err).Msg("failed to migrate schema")
		}
		store = adapter
	}

	var sinks []port.Sink
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		sinks = append(sinks, storage.NewRedisAdapter(rdb))
	}
	dispatcher := broadcast.NewDispatcher(*totalRequests*2, 1, sinks...)
	dispatcher.Start()
	defer dispatcher.Close()

	inventory := service.NewInventoryService(store, dispatcher)
	code := "stress-" + uuid.NewString()

	var inserts atomic.Int32
	var failures atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			res, err := inventory.Import(ctx, domain.ImportRequest{Code: code, Name: fmt.Sprintf("stress item %d", id)})
			if err != nil {
				failures.Add(1)
				logging.Error().Err(err).Int("request", id).Msg("import failed")
				return
			}
			if res.WasNew {
				inserts.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	item, err := store.GetInventoryByCode(ctx, code)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to read back item")
	}
	quantity := 0
	if item != nil {
		quantity = item.Quantity
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", cfg.Storage.Driver)
	fmt.Printf("Code:             %s\n", code)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Inserts:          %d\n", inserts.Load())
	fmt.Printf("Failed:           %d\n", failures.Load())
	fmt.Printf("Final Quantity:   %d\n", quantity)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if inserts.Load() == 1 {
		fmt.Println("PASS: exactly one insert")
	} else {
		fmt.Printf("FAIL: expected 1 insert, got %d\n", inserts.Load())
		ok = false
	}
	if quantity == *totalRequests && failures.Load() == 0 {
		fmt.Printf("PASS: quantity %d\n", quantity)
	} else {
		fmt.Printf("FAIL: expected quantity %d, got %d\n", *totalRequests, quantity)
		ok = false
	}

	// Drain the row so repeated runs leave no residue
	if item != nil {
		for i := 0; i < quantity; i++ {
			if _, err := inventory.Export(ctx, domain.ExportRequest{Code: code, Name: item.Name}); err != nil {
				logging.Error().Err(err).Msg("cleanup export failed")
				break
			}
		}
	}

	if !ok {
		dispatcher.Close()
		os.Exit(1)
	}
}
