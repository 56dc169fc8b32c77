package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/port"
)

const (
	sku           = "SOAK-1"
	capacity      = 60
	initialStock  = 50
	totalRequests = 200
	transferSize  = 3
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize store
	var store port.DatabaseRepository = storage.NewMemoryStore()
	if cfg.StoreDriver != "memory" {
		sqlStore, err := storage.OpenSQLStore(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	opts := service.Options{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		opts.Cache = storage.NewRedisAdapter(rdb)
	}

	facilities := service.NewFacilityService(store, domain.DeleteCascade, opts)
	inventory := service.NewInventoryService(store, opts)

	// Seed two facilities; B starts empty
	a, err := facilities.Create(ctx, domain.Facility{Name: "soak-a", MaxCapacity: capacity})
	if err != nil {
		log.Fatalf("failed to create facility: %v", err)
	}
	b, err := facilities.Create(ctx, domain.Facility{Name: "soak-b", MaxCapacity: capacity})
	if err != nil {
		log.Fatalf("failed to create facility: %v", err)
	}
	defer facilities.Delete(ctx, a.ID)
	defer facilities.Delete(ctx, b.ID)

	lineA, err := inventory.AddStock(ctx, service.AddStockRequest{FacilityID: a.ID, SKU: sku, Name: "Soak", Quantity: initialStock})
	if err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}
	lineB, err := inventory.AddStock(ctx, service.AddStockRequest{FacilityID: b.ID, SKU: sku, Name: "Soak", Quantity: 0})
	if err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	// Counters
	var successCount, rejectCount, duplicateCount, errorCount atomic.Int32

	// Spawn concurrent transfers in both directions, every fifth one replaying
	// the previous request id
	var wg sync.WaitGroup
	start := time.Now()
	requestIDs := make([]string, totalRequests)
	for i := range requestIDs {
		requestIDs[i] = uuid.NewString()
		if i%5 == 4 {
			requestIDs[i] = requestIDs[i-1]
		}
	}

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			req := service.TransferRequest{
				RequestID: requestIDs[i], LineID: lineA.ID,
				FromFacilityID: a.ID, ToFacilityID: b.ID, Quantity: transferSize,
			}
			if i%2 == 1 {
				req.LineID, req.FromFacilityID, req.ToFacilityID = lineB.ID, b.ID, a.ID
			}

			_, err := inventory.Transfer(ctx, req)
			switch {
			case err == nil:
				successCount.Add(1)
			case service.IsDuplicate(err):
				duplicateCount.Add(1)
			case domain.KindOf(err) != nil:
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("transfer %d failed: %v", i, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	loadA, _ := facilities.CurrentLoad(ctx, a.ID)
	loadB, _ := facilities.CurrentLoad(ctx, b.ID)

	// Results
	fmt.Println("========== TRANSFER SOAK RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.StoreDriver)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Rejected:         %d\n", rejectCount.Load())
	fmt.Printf("Duplicates:       %d\n", duplicateCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Final Loads:      A=%d B=%d\n", loadA, loadB)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("===========================================")

	// Assertions
	if loadA+loadB == initialStock {
		fmt.Printf("PASS: %d units conserved\n", initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d units in total, got %d\n", initialStock, loadA+loadB)
	}
	if loadA <= capacity && loadB <= capacity {
		fmt.Println("PASS: No facility over capacity")
	} else {
		fmt.Printf("FAIL: Capacity %d exceeded: A=%d B=%d\n", capacity, loadA, loadB)
	}
	if errorCount.Load() == 0 {
		fmt.Println("PASS: No internal errors")
	} else {
		fmt.Printf("FAIL: %d internal errors\n", errorCount.Load())
	}
}
