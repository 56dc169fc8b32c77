package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stockroom/internal/core/service"
)

const InventoryServiceName = "stockroom.v1.Inventory"

type AddStockRPC struct {
	WarehouseID     int64   `json:"warehouse_id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	Quantity        int     `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
	Inline          bool    `json:"inline"`
}

type UpdateLineRPC struct {
	LineID          int64   `json:"line_id"`
	Quantity        int     `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
}

type TransferRPC struct {
	RequestID       string `json:"request_id"`
	LineID          int64  `json:"line_id"`
	FromWarehouseID int64  `json:"from_warehouse_id"`
	ToWarehouseID   int64  `json:"to_warehouse_id"`
	Quantity        int    `json:"quantity"`
}

type GetCapacityRPC struct {
	WarehouseID int64 `json:"warehouse_id"`
}

type ResolveProductRPC struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// InventoryServer is the server API of stockroom.v1.Inventory.
type InventoryServer interface {
	AddStock(context.Context, *AddStockRPC) (*StockLineJSON, error)
	UpdateLine(context.Context, *UpdateLineRPC) (*StockLineJSON, error)
	Transfer(context.Context, *TransferRPC) (*TransferHTTPResponse, error)
	GetCapacity(context.Context, *GetCapacityRPC) (*CapacityReportJSON, error)
	ResolveProduct(context.Context, *ResolveProductRPC) (*ProductJSON, error)
}

var _ InventoryServer = (*GRPCHandler)(nil)

type GRPCHandler struct {
	inventory  *service.InventoryService
	facilities *service.FacilityService
	catalog    *service.CatalogService
}

func NewGRPCHandler(inventory *service.InventoryService, facilities *service.FacilityService,
	catalog *service.CatalogService) *GRPCHandler {
	return &GRPCHandler{inventory: inventory, facilities: facilities, catalog: catalog}
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

func (h *GRPCHandler) AddStock(ctx context.Context, req *AddStockRPC) (*StockLineJSON, error) {
	line, err := h.inventory.AddStock(ctx, service.AddStockRequest{
		FacilityID:      req.WarehouseID,
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Quantity:        req.Quantity,
		StorageLocation: req.StorageLocation,
		Inline:          req.Inline,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	out := toLineJSON(line)
	return &out, nil
}

func (h *GRPCHandler) UpdateLine(ctx context.Context, req *UpdateLineRPC) (*StockLineJSON, error) {
	line, err := h.inventory.UpdateLine(ctx, req.LineID, req.Quantity, req.StorageLocation)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toLineJSON(line)
	return &out, nil
}

func (h *GRPCHandler) Transfer(ctx context.Context, req *TransferRPC) (*TransferHTTPResponse, error) {
	result, err := h.inventory.Transfer(ctx, service.TransferRequest{
		RequestID:      req.RequestID,
		LineID:         req.LineID,
		FromFacilityID: req.FromWarehouseID,
		ToFacilityID:   req.ToWarehouseID,
		Quantity:       req.Quantity,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &TransferHTTPResponse{
		Source:      toLineJSON(result.Source),
		Destination: toLineJSON(result.Destination),
	}, nil
}

func (h *GRPCHandler) GetCapacity(ctx context.Context, req *GetCapacityRPC) (*CapacityReportJSON, error) {
	report, err := h.facilities.Report(ctx, req.WarehouseID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &CapacityReportJSON{
		WarehouseID: report.FacilityID,
		MaxCapacity: report.MaxCapacity,
		Load:        report.Load,
		Remaining:   report.Remaining,
		Utilization: report.Utilization.StringFixed(2),
	}, nil
}

func (h *GRPCHandler) ResolveProduct(ctx context.Context, req *ResolveProductRPC) (*ProductJSON, error) {
	p, err := h.catalog.ResolveOrCreate(ctx, req.SKU, req.Name, req.Description, req.Category)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toProductJSON(p)
	return &out, nil
}

// UnaryLogger logs every unary call with its status code and latency.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}

func unary[Req, Resp any](method string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(InventoryServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + InventoryServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("AddStock", InventoryServer.AddStock),
		unary("UpdateLine", InventoryServer.UpdateLine),
		unary("Transfer", InventoryServer.Transfer),
		unary("GetCapacity", InventoryServer.GetCapacity),
		unary("ResolveProduct", InventoryServer.ResolveProduct),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockroom/v1/inventory",
}

// InventoryClient calls stockroom.v1.Inventory with the JSON codec.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+InventoryServiceName+"/"+method, in, out, opts...)
}

func (c *InventoryClient) AddStock(ctx context.Context, in *AddStockRPC, opts ...grpc.CallOption) (*StockLineJSON, error) {
	out := new(StockLineJSON)
	if err := c.invoke(ctx, "AddStock", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) UpdateLine(ctx context.Context, in *UpdateLineRPC, opts ...grpc.CallOption) (*StockLineJSON, error) {
	out := new(StockLineJSON)
	if err := c.invoke(ctx, "UpdateLine", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) Transfer(ctx context.Context, in *TransferRPC, opts ...grpc.CallOption) (*TransferHTTPResponse, error) {
	out := new(TransferHTTPResponse)
	if err := c.invoke(ctx, "Transfer", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) GetCapacity(ctx context.Context, in *GetCapacityRPC, opts ...grpc.CallOption) (*CapacityReportJSON, error) {
	out := new(CapacityReportJSON)
	if err := c.invoke(ctx, "GetCapacity", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) ResolveProduct(ctx context.Context, in *ResolveProductRPC, opts ...grpc.CallOption) (*ProductJSON, error) {
	out := new(ProductJSON)
	if err := c.invoke(ctx, "ResolveProduct", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
