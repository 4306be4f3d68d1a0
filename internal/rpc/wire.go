package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region messages
// Messages travel as google.protobuf.Struct; these are their JSON shapes.

type feedbackRequest struct {
	PlanID  string           `json:"plan_id"`
	Pre     affect.State     `json:"pre"`
	Post    affect.State     `json:"post"`
	Outcome feedback.Outcome `json:"outcome"`
}

type feedbackResponse struct {
	Record feedback.Record `json:"record"`
	Reward float64         `json:"reward"`
}

type windowRequest struct {
	WindowMs int64 `json:"window_ms"`
}

func (w windowRequest) duration() time.Duration {
	return time.Duration(w.WindowMs) * time.Millisecond
}

type windowResponse struct {
	Records []feedback.Record `json:"records"`
}

// #endregion messages

// #region struct-codec
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// #endregion struct-codec

// #region errors
// toStatus maps engine errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, affect.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus restores ErrInvalidInput so errors.Is works across the wire.
func fromStatus(err error) error {
	if status.Code(err) == codes.InvalidArgument {
		return fmt.Errorf("%w: %s", affect.ErrInvalidInput, status.Convert(err).Message())
	}
	return err
}

// #endregion errors
