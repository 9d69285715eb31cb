package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Ammarmeer/drowsiness/internal/classifier"
	"github.com/Ammarmeer/drowsiness/internal/models"
)

const (
	ClassifyMethod = "/drowsyguard.inference.v1.Classifier/Classify"

	MetaFrameWidth    = "x-frame-width"
	MetaFrameHeight   = "x-frame-height"
	MetaFrameChannels = "x-frame-channels"

	maxMessageSize = 50 * 1024 * 1024
)

// GRPCClient talks to the inference service. It implements classifier.Classifier.
type GRPCClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	url    string
	logger *slog.Logger
}

func NewGRPCClient(url string, extra ...grpc.DialOption) (*GRPCClient, error) {
	logger := slog.Default().With("component", "classifier-client", "addr", url)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create classifier client for %s: %w", url, err)
	}
	logger.Info("classifier client created")

	return &GRPCClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		url:    url,
		logger: logger,
	}, nil
}

func (gc *GRPCClient) Classify(ctx context.Context, frame classifier.Frame) (classifier.Prediction, error) {
	if !frame.Valid() {
		return classifier.Prediction{}, fmt.Errorf("malformed frame %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Pix))
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		MetaFrameWidth, strconv.Itoa(frame.Width),
		MetaFrameHeight, strconv.Itoa(frame.Height),
		MetaFrameChannels, strconv.Itoa(classifier.Channels),
	)

	reply := &structpb.Struct{}
	if err := gc.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(frame.Pix), reply); err != nil {
		return classifier.Prediction{}, fmt.Errorf("%w: %w", models.ErrClassifierFailure, err)
	}
	return predictionFromStruct(reply)
}

func predictionFromStruct(s *structpb.Struct) (classifier.Prediction, error) {
	fields := s.GetFields()
	label, ok := fields["label"]
	if !ok {
		return classifier.Prediction{}, fmt.Errorf("%w: reply has no label", models.ErrClassifierFailure)
	}
	p := classifier.Prediction{Label: label.GetStringValue()}
	if conf, ok := fields["confidence"]; ok {
		p.Confidence = conf.GetNumberValue()
	}
	return p, nil
}

func (gc *GRPCClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := gc.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		gc.logger.Debug("classifier health check failed", "error", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func (gc *GRPCClient) Close() error {
	if gc.conn != nil {
		return gc.conn.Close()
	}
	return nil
}
