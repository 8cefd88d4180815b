package grpcx

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/feed"
	"github.com/cwrk-planet/roulette-service/internal/identity"
	"github.com/cwrk-planet/roulette-service/internal/service"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const mdAuthorization = "authorization"

type Server struct {
	coord *service.Coordinator
}

var _ RouletteServiceServer = (*Server)(nil)

func NewServer(coord *service.Coordinator) *Server {
	return &Server{coord: coord}
}

func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}

func (s *Server) GetRoom(ctx context.Context, roomID string) (*structpb.Struct, error) {
	room, err := s.coord.Room(ctx, roomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(room)
}

func (s *Server) GetState(ctx context.Context, roomID string) (*structpb.Struct, error) {
	snap, err := s.coord.Snapshot(ctx, roomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(snap)
}

func (s *Server) ListParticipants(ctx context.Context, roomID string) (*structpb.Struct, error) {
	items, err := s.coord.Participants(ctx, roomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"items": items})
}

func (s *Server) Join(ctx context.Context, roomID string) (*structpb.Struct, error) {
	id, err := userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.coord.Join(ctx, roomID, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(snap)
}

// Contribute expects {"roomId", "kind", "amount"}; amount may be a number or a
// decimal string.
func (s *Server) Contribute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	fields := req.GetFields()
	roomID := fields["roomId"].GetStringValue()
	amount, err := amountOf(fields["amount"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	kind, err := domain.ParseKind(fields["kind"].GetStringValue(), hasValue(fields["amount"]))
	if err != nil {
		return nil, toStatus(err)
	}

	rc, err := s.coord.Contribute(ctx, roomID, id, amount, kind)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(rc)
}

func (s *Server) ResolveIfDue(ctx context.Context, roomID string) (*structpb.Struct, error) {
	st, trs, err := s.coord.Tick(ctx, roomID)
	if err != nil {
		return nil, toStatus(err)
	}
	type transition struct {
		From domain.Status `json:"from"`
		To   domain.Status `json:"to"`
	}
	out := make([]transition, 0, len(trs))
	for _, tr := range trs {
		out = append(out, transition{From: tr.From, To: tr.To})
	}
	return toStruct(map[string]any{"transitions": out, "state": s.coord.View(st)})
}

func (s *Server) ResetRound(ctx context.Context, roomID string) (*structpb.Struct, error) {
	st, ok, err := s.coord.Reset(ctx, roomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"reset": ok, "state": s.coord.View(st)})
}

// Watch sends the current snapshot and then every committed one until the
// client goes away.
func (s *Server) Watch(roomID string, stream grpc.ServerStream) error {
	ctx := stream.Context()
	sub, snap, err := s.coord.Subscribe(ctx, roomID)
	if err != nil {
		return toStatus(err)
	}
	defer sub.Close()

	var seen feed.Mirror
	seen.Apply(snap)
	if err := sendSnapshot(stream, snap); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			if !seen.Apply(snap) {
				continue
			}
			if err := sendSnapshot(stream, snap); err != nil {
				return err
			}
		}
	}
}

func sendSnapshot(stream grpc.ServerStream, snap domain.Snapshot) error {
	msg, err := toStruct(snap)
	if err != nil {
		return err
	}
	return stream.SendMsg(msg)
}

// -------- helpers --------

type mdGetter metadata.MD

func (m mdGetter) Get(key string) string {
	return first(metadata.MD(m).Get(strings.ToLower(key)))
}

// userFromMD reads the caller from "authorization: Bearer <session>" or the
// x-user-id metadata family.
func userFromMD(ctx context.Context) (domain.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	id, err := identity.Resolve(first(md.Get(mdAuthorization)), mdGetter(md))
	if err != nil {
		return domain.Identity{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return id, nil
}

func amountOf(v *structpb.Value) (decimal.Decimal, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return decimal.Zero, nil
	case *structpb.Value_NumberValue:
		if math.IsNaN(k.NumberValue) || math.IsInf(k.NumberValue, 0) {
			return decimal.Zero, errors.New("amount must be finite")
		}
		return decimal.NewFromFloat(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return decimal.NewFromString(k.StringValue)
	default:
		return decimal.Zero, errors.New("amount must be a number or a decimal string")
	}
}

func hasValue(v *structpb.Value) bool {
	switch v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return false
	}
	return true
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrRoundLocked), errors.Is(err, domain.ErrNoParticipants):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidRoomID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInvalidIdentity), errors.Is(err, identity.ErrMissing):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}

	return ss[0]
}
