package handlers

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Ammarmeer/drowsiness/internal/classifier"
	"github.com/Ammarmeer/drowsiness/internal/services"
)

func startPredictionServer(t *testing.T, c classifier.Classifier) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor))
	RegisterPredictionServer(srv, NewGRPCHandler(classifier.NewGuard(c, time.Second), services.NewMetrics()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPredictFrameRPC(t *testing.T) {
	model := &scriptedClassifier{}
	model.set("sleepy", 0.777777)
	conn := startPredictionServer(t, model)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, PredictFrameMethod, wrapperspb.Bytes(pngBytes(t)), out); err != nil {
		t.Fatalf("PredictFrame: %v", err)
	}
	f := out.GetFields()
	if f["prediction"].GetStringValue() != "sleepy" || f["confidence"].GetNumberValue() != 0.7778 {
		t.Errorf("reply = %v", out)
	}

	err := conn.Invoke(ctx, PredictFrameMethod, wrapperspb.Bytes([]byte("junk")), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("junk image code = %v, want InvalidArgument", status.Code(err))
	}
	err = conn.Invoke(ctx, PredictFrameMethod, wrapperspb.Bytes(nil), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty image code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestPredictFrameRPCWithoutModel(t *testing.T) {
	conn := startPredictionServer(t, nil)
	out := &structpb.Struct{}
	if err := conn.Invoke(context.Background(), PredictFrameMethod, wrapperspb.Bytes(pngBytes(t)), out); err != nil {
		t.Fatalf("PredictFrame: %v", err)
	}
	if got := out.GetFields()["prediction"].GetStringValue(); got != classifier.LabelModelError {
		t.Errorf("prediction = %q, want %q", got, classifier.LabelModelError)
	}
}

func TestPredictStreamRPC(t *testing.T) {
	model := &scriptedClassifier{}
	model.set("alert", 0.5)
	conn := startPredictionServer(t, model)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: "PredictStream", ServerStreams: true, ClientStreams: true}
	cs, err := conn.NewStream(ctx, desc, PredictStreamMethod)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	stream := &grpc.GenericClientStream[wrapperspb.BytesValue, structpb.Struct]{ClientStream: cs}

	img := pngBytes(t)
	for i := 0; i < 3; i++ {
		if err := stream.Send(wrapperspb.Bytes(img)); err != nil {
			t.Fatalf("Send: %v", err)
		}
		out, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if out.GetFields()["prediction"].GetStringValue() != "alert" {
			t.Errorf("frame %d reply = %v", i, out)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("after CloseSend err = %v, want EOF", err)
	}
}
