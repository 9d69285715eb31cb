package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Ammarmeer/drowsiness/internal/classifier"
	"github.com/Ammarmeer/drowsiness/internal/services"
)

const (
	PredictionService   = "drowsyguard.v1.Prediction"
	PredictFrameMethod  = "/" + PredictionService + "/PredictFrame"
	PredictStreamMethod = "/" + PredictionService + "/PredictStream"
)

// PredictionServer classifies encoded images without touching the ledger.
type PredictionServer interface {
	PredictFrame(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
	PredictStream(stream grpc.BidiStreamingServer[wrapperspb.BytesValue, structpb.Struct]) error
}

type GRPCHandler struct {
	guard   *classifier.Guard
	metrics *services.Metrics
	logger  *slog.Logger
}

func NewGRPCHandler(guard *classifier.Guard, metrics *services.Metrics) *GRPCHandler {
	return &GRPCHandler{
		guard:   guard,
		metrics: metrics,
		logger:  slog.Default().With("component", "grpc"),
	}
}

func RegisterPredictionServer(s grpc.ServiceRegistrar, srv PredictionServer) {
	s.RegisterService(&predictionServiceDesc, srv)
}

func (h *GRPCHandler) PredictFrame(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "image bytes are required")
	}
	return h.predict(ctx, in.GetValue())
}

// PredictStream answers every received image in order until the client closes its side.
func (h *GRPCHandler) PredictStream(stream grpc.BidiStreamingServer[wrapperspb.BytesValue, structpb.Struct]) error {
	h.logger.Info("stream started")
	var frames int
	for {
		in, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			h.logger.Info("stream completed", "frames", frames)
			return nil
		}
		if err != nil {
			return err
		}

		out, err := h.predict(stream.Context(), in.GetValue())
		if err != nil {
			return err
		}
		if err := stream.Send(out); err != nil {
			return err
		}
		frames++
	}
}

func (h *GRPCHandler) predict(ctx context.Context, image []byte) (*structpb.Struct, error) {
	frame, err := classifier.DecodeFrame(image)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	p := h.guard.Predict(ctx, frame)
	if h.metrics != nil {
		h.metrics.IncrementFrames()
		h.metrics.RecordLatency(time.Since(start))
	}

	out, err := structpb.NewStruct(map[string]any{
		"prediction": p.Label,
		"confidence": p.Confidence,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// UnaryLoggingInterceptor logs method, code and duration of each unary call.
func UnaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	level := slog.LevelInfo
	if code != codes.OK {
		level = slog.LevelWarn
	}
	slog.Default().Log(ctx, level, "rpc", "component", "grpc", "method", info.FullMethod,
		"code", code.String(), "duration_ms", time.Since(start).Milliseconds())
	return resp, err
}

func predictFrameHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictionServer).PredictFrame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictFrameMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictionServer).PredictFrame(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func predictStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(PredictionServer).PredictStream(&grpc.GenericServerStream[wrapperspb.BytesValue, structpb.Struct]{ServerStream: stream})
}

var predictionServiceDesc = grpc.ServiceDesc{
	ServiceName: PredictionService,
	HandlerType: (*PredictionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PredictFrame", Handler: predictFrameHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PredictStream",
			Handler:       predictStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}
