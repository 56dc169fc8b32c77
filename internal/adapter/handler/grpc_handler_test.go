package handler

import (
	"context"
	"net"
	"sync"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

type grpcFixture struct {
	client     *InventoryClient
	facilities *service.FacilityService
	inventory  *service.InventoryService
}

func newGRPCFixture(t *testing.T) grpcFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	cache := newMemoryCache()
	inventory := service.NewInventoryService(store, service.Options{Cache: cache})
	facilities := service.NewFacilityService(store, domain.DeleteOrphan, service.Options{})
	catalog := service.NewCatalogService(store, service.Options{})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(zap.NewNop())))
	RegisterInventoryServer(srv, NewGRPCHandler(inventory, facilities, catalog))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return grpcFixture{client: NewInventoryClient(conn), facilities: facilities, inventory: inventory}
}

type memoryCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: map[string]bool{}}
}

func (c *memoryCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memoryCache) ClearIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func TestGRPC_AddStockAndCapacity(t *testing.T) {
	fx := newGRPCFixture(t)
	ctx := context.Background()

	f, err := fx.facilities.Create(ctx, domain.Facility{Name: "RPC", MaxCapacity: 50})
	if err != nil {
		t.Fatalf("create facility: %v", err)
	}

	line, err := fx.client.AddStock(ctx, &AddStockRPC{WarehouseID: f.ID, SKU: "R-1", Name: "Rope", Quantity: 20})
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if line.ID == 0 || line.Quantity != 20 || line.ProductID == 0 {
		t.Errorf("unexpected line %+v", line)
	}

	report, err := fx.client.GetCapacity(ctx, &GetCapacityRPC{WarehouseID: f.ID})
	if err != nil {
		t.Fatalf("GetCapacity failed: %v", err)
	}
	if report.Load != 20 || report.Remaining != 30 || report.Utilization != "40.00" {
		t.Errorf("unexpected report %+v", report)
	}

	_, err = fx.client.AddStock(ctx, &AddStockRPC{WarehouseID: f.ID, SKU: "R-1", Name: "Rope", Quantity: 31})
	if status.Code(err) != codes.ResourceExhausted {
		t.Errorf("expected ResourceExhausted, got %v", err)
	}

	_, err = fx.client.GetCapacity(ctx, &GetCapacityRPC{WarehouseID: 999})
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestGRPC_UpdateLine(t *testing.T) {
	fx := newGRPCFixture(t)
	ctx := context.Background()

	f, _ := fx.facilities.Create(ctx, domain.Facility{Name: "Upd", MaxCapacity: 100})
	line, err := fx.client.AddStock(ctx, &AddStockRPC{WarehouseID: f.ID, SKU: "U-1", Name: "Unit", Quantity: 10})
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}

	updated, err := fx.client.UpdateLine(ctx, &UpdateLineRPC{LineID: line.ID, Quantity: 60, StorageLocation: domain.StringPtr("C-3")})
	if err != nil {
		t.Fatalf("UpdateLine failed: %v", err)
	}
	if updated.Quantity != 60 || updated.StorageLocation == nil || *updated.StorageLocation != "C-3" {
		t.Errorf("unexpected line %+v", updated)
	}

	_, err = fx.client.UpdateLine(ctx, &UpdateLineRPC{LineID: line.ID, Quantity: -1})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestGRPC_TransferIsIdempotent(t *testing.T) {
	fx := newGRPCFixture(t)
	ctx := context.Background()

	src, _ := fx.facilities.Create(ctx, domain.Facility{Name: "Src", MaxCapacity: 100})
	dst, _ := fx.facilities.Create(ctx, domain.Facility{Name: "Dst", MaxCapacity: 100})
	line, err := fx.client.AddStock(ctx, &AddStockRPC{WarehouseID: src.ID, SKU: "M-1", Name: "Mop", Quantity: 10})
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}

	req := &TransferRPC{RequestID: "move-1", LineID: line.ID, FromWarehouseID: src.ID, ToWarehouseID: dst.ID, Quantity: 4}
	result, err := fx.client.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if result.Source.Quantity != 6 || result.Destination.Quantity != 4 {
		t.Errorf("unexpected result %+v", result)
	}

	_, err = fx.client.Transfer(ctx, req)
	if status.Code(err) != codes.AlreadyExists {
		t.Errorf("expected AlreadyExists for repeated request, got %v", err)
	}

	_, err = fx.client.Transfer(ctx, &TransferRPC{LineID: line.ID, FromWarehouseID: dst.ID, ToWarehouseID: src.ID, Quantity: 1})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition for wrong source, got %v", err)
	}

	load, _ := fx.facilities.CurrentLoad(ctx, src.ID)
	if load != 6 {
		t.Errorf("expected source load 6, got %d", load)
	}
}

func TestGRPC_ResolveProduct(t *testing.T) {
	fx := newGRPCFixture(t)
	ctx := context.Background()

	first, err := fx.client.ResolveProduct(ctx, &ResolveProductRPC{SKU: "abc", Name: "Alpha"})
	if err != nil {
		t.Fatalf("ResolveProduct failed: %v", err)
	}
	second, err := fx.client.ResolveProduct(ctx, &ResolveProductRPC{SKU: "ABC", Name: "Beta"})
	if err != nil {
		t.Fatalf("ResolveProduct failed: %v", err)
	}
	if first.ID != second.ID || second.Name != "Alpha" {
		t.Errorf("expected one product, got %+v and %+v", first, second)
	}

	_, err = fx.client.ResolveProduct(ctx, &ResolveProductRPC{SKU: " ", Name: "Blank"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}
