package grpc

import (
	"bytes"
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "traceability.v1.TraceabilityService"

// TraceabilityServer запросы и ответы передаются как google.protobuf.Struct
// с теми же полями, что и JSON тела REST API.
type TraceabilityServer interface {
	ResolveDescendant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ResolveAscendant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CheckReliability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	LookupPosition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SnapshotIdentifiers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv TraceabilityServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

var traceabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TraceabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ResolveDescendant", TraceabilityServer.ResolveDescendant),
		unaryMethod("ResolveAscendant", TraceabilityServer.ResolveAscendant),
		unaryMethod("CheckReliability", TraceabilityServer.CheckReliability),
		unaryMethod("LookupPosition", TraceabilityServer.LookupPosition),
		unaryMethod("SnapshotIdentifiers", TraceabilityServer.SnapshotIdentifiers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "traceability/v1/traceability.proto",
}

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TraceabilityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TraceabilityServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func decodeStruct(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	// неизвестные поля отклоняются так же, как в REST
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
