package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/damage-estimator/internal/classifier"
	"github.com/example/damage-estimator/internal/logging"
)

// ClassifyMethod is the unary method served by the model service. The request
// is a google.protobuf.BytesValue holding the encoded image; the reply is a
// google.protobuf.Struct with "label" and "confidence" fields.
const ClassifyMethod = "/damage.v1.DamageClassifier/Classify"

// DialClassifier returns a ready-to-use gRPC client for the model service.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClassifier(conn, logger), conn, nil
}

// NewClassifier builds a client on an existing connection.
func NewClassifier(conn grpc.ClientConnInterface, logger *zap.Logger) classifier.Client {
	return &grpcClassifier{conn: conn, logger: logger.Named("grpc_classifier")}
}

type grpcClassifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcClassifier) Classify(ctx context.Context, image []byte) (*classifier.Result, error) {
	if len(image) == 0 {
		return nil, classifier.ErrEmptyImage
	}

	reply := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(image), reply); err != nil {
		if status.Code(err) == codes.InvalidArgument {
			err = fmt.Errorf("%w: %w", classifier.ErrUnreadableImage, err)
		}
		wrapped := logging.NewOperationError("grpcclient.classify", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped), zap.Int("image_bytes", len(image)))
		return nil, wrapped
	}
	return decodeReply(reply)
}

func decodeReply(reply *structpb.Struct) (*classifier.Result, error) {
	fields := reply.GetFields()
	label, okLabel := fields["label"].GetKind().(*structpb.Value_StringValue)
	confidence, okConf := fields["confidence"].GetKind().(*structpb.Value_NumberValue)
	if !okLabel || !okConf {
		return nil, logging.NewOperationError("grpcclient.decode_reply", "", classifier.ErrMalformedResponse)
	}
	return &classifier.Result{Label: label.StringValue, Confidence: confidence.NumberValue}, nil
}
