// Package rpc exposes the planning engine over gRPC. Messages are
// google.protobuf.Struct values carrying the engine's JSON shapes, so no
// generated code is needed on either side.
package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/orchestrator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	ServiceName = "plancore.Planner"

	methodPlan           = "/" + ServiceName + "/Plan"
	methodRecordFeedback = "/" + ServiceName + "/RecordFeedback"
	methodWindow         = "/" + ServiceName + "/Window"
)

// PlannerServer is the handler contract registered with grpc.
type PlannerServer interface {
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordFeedback(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Window(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(fullMethod string, call func(PlannerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PlannerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PlannerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Plan", Handler: unaryHandler(methodPlan, PlannerServer.Plan)},
		{MethodName: "RecordFeedback", Handler: unaryHandler(methodRecordFeedback, PlannerServer.RecordFeedback)},
		{MethodName: "Window", Handler: unaryHandler(methodWindow, PlannerServer.Window)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plancore/planner",
}

// #endregion service-desc

// #region server
// Planner is the engine surface the server forwards to.
type Planner interface {
	Plan(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
	RecordFeedback(ctx context.Context, planID string, pre, post affect.State, outcome feedback.Outcome) (feedback.Record, float64, error)
	Window(d time.Duration) []feedback.Record
}

// Server adapts a Planner to the gRPC service.
type Server struct {
	planner Planner
	logger  *zap.Logger
	grpc    *grpc.Server
}

// NewServer builds a gRPC server with a logging interceptor and registers the
// planner service on it.
func NewServer(p Planner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{planner: p, logger: logger.Named("rpc")}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks accepting connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("serving", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop drains in-flight calls and closes listeners.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", status.Code(err).String()),
	}
	if err != nil {
		s.logger.Warn("rpc failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("rpc", fields...)
	}
	return resp, err
}

// #endregion server

// #region handlers
// Plan runs one planning cycle.
func (s *Server) Plan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req orchestrator.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.planner.Plan(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(res)
}

// RecordFeedback records an execution outcome.
func (s *Server) RecordFeedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req feedbackRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, reward, err := s.planner.RecordFeedback(ctx, req.PlanID, req.Pre, req.Post, req.Outcome)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(feedbackResponse{Record: rec, Reward: reward})
}

// Window returns history records younger than window_ms.
func (s *Server) Window(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req windowRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.WindowMs < 0 {
		return nil, status.Error(codes.InvalidArgument, "window_ms must be >= 0")
	}
	return encode(windowResponse{Records: s.planner.Window(req.duration())})
}

func encode(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// #endregion handlers
