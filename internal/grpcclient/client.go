package grpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/resilience"
	"github.com/spikely/platform/internal/trace"
)

// Config holds connection settings.
type Config struct {
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	ReadyTimeout     time.Duration
}

// DefaultConfig returns default connection settings.
func DefaultConfig() Config {
	return Config{
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		ReadyTimeout:     DefaultReadyTimeout,
	}
}

// Client wraps the inference connection and guards each service with its own breaker.
type Client struct {
	conn    *grpc.ClientConn
	cfg     Config
	tone    *resilience.Breaker
	scoring *resilience.Breaker
}

// New creates a client for addr. Extra dial options are appended after the defaults.
func New(addr string, cfg Config, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "dial inference")
	}

	return &Client{
		conn:    conn,
		cfg:     cfg,
		tone:    resilience.New(resilience.DefaultConfig("grpc-tone")),
		scoring: resilience.New(resilience.ScoringConfig("grpc-scoring")),
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// WaitReady blocks until the connection is ready or the ready timeout elapses.
func (c *Client) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	c.conn.Connect()
	for {
		s := c.conn.GetState()
		if s == connectivity.Ready {
			return nil
		}
		if !c.conn.WaitForStateChange(ctx, s) {
			return apperrors.Newf(apperrors.CodeUnavailable, "inference not ready: %s", s)
		}
	}
}

// GenerateInsight asks the scoring service for a label and next move.
func (c *Client) GenerateInsight(ctx context.Context, req model.ScoreRequest) (model.ScoreResponse, error) {
	ctx, span := trace.StartSpan(ctx, "grpc_generate_insight")
	defer span.End()

	in, err := toStruct(req)
	if err != nil {
		return model.ScoreResponse{}, err
	}

	return resilience.ExecuteWithResult(c.scoring, func() (model.ScoreResponse, error) {
		out := &structpb.Struct{}
		if err := c.conn.Invoke(ctx, MethodGenerateInsight, in, out); err != nil {
			span.SetAttr("error", err.Error())
			return model.ScoreResponse{}, fromStatus(ctx, err)
		}
		f := out.GetFields()
		return model.ScoreResponse{
			EmotionalLabel: f["emotionalLabel"].GetStringValue(),
			NextMove:       f["nextMove"].GetStringValue(),
		}, nil
	})
}

// AnalyzeText classifies the tone of a transcript segment.
func (c *Client) AnalyzeText(ctx context.Context, text string) (model.ToneResult, error) {
	ctx, span := trace.StartSpan(ctx, "grpc_analyze_text")
	defer span.End()

	in, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return model.ToneResult{}, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "tone request")
	}

	return resilience.ExecuteWithResult(c.tone, func() (model.ToneResult, error) {
		out := &structpb.Struct{}
		if err := c.conn.Invoke(ctx, MethodAnalyzeText, in, out); err != nil {
			return model.ToneResult{}, fromStatus(ctx, err)
		}
		f := out.GetFields()
		if f["emotion"].GetStringValue() == "" || f["score"] == nil {
			return model.ToneResult{}, apperrors.New(apperrors.CodeMalformedResponse, "tone response missing emotion or score")
		}
		res := model.ToneResult{
			Emotion:    f["emotion"].GetStringValue(),
			Score:      f["score"].GetNumberValue(),
			Confidence: f["score"].GetNumberValue(),
		}
		if v, ok := f["confidence"]; ok {
			res.Confidence = v.GetNumberValue()
		}
		return res, nil
	})
}

// toStruct converts a JSON-tagged value into a structpb.Struct using its wire names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "encode request")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "encode request")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "encode request")
	}
	return s, nil
}

// fromStatus converts a gRPC error to an AppError, keeping context errors matchable.
func fromStatus(ctx context.Context, err error) error {
	appErr := apperrors.FromGRPCError(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		appErr.Cause = errors.Join(err, ctxErr)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			appErr.Code = apperrors.CodeTimeout
		} else {
			appErr.Code = apperrors.CodeCancelled
		}
	}
	return appErr
}
