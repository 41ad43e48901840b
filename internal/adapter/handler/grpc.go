package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/core/service"
)

const (
	LookupServiceName = "ransomwatch.v1.Lookup"
	checkIOCMethod    = "/" + LookupServiceName + "/CheckIOC"
)

// LookupServer is the server API of ransomwatch.v1.Lookup. Requests and
// responses are google.protobuf.Struct so no generated code is needed.
type LookupServer interface {
	CheckIOC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// LookupServiceDesc describes ransomwatch.v1.Lookup for grpc.Server.RegisterService.
var LookupServiceDesc = grpc.ServiceDesc{
	ServiceName: LookupServiceName,
	HandlerType: (*LookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CheckIOC",
			Handler:    checkIOCHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ransomwatch/v1/lookup.proto",
}

func checkIOCHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).CheckIOC(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: checkIOCMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LookupServer).CheckIOC(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterLookupServer registers srv on s.
func RegisterLookupServer(s grpc.ServiceRegistrar, srv LookupServer) {
	s.RegisterService(&LookupServiceDesc, srv)
}

type GrpcServer struct {
	lookup *service.Lookup
	logger *zap.Logger
}

func NewGrpcServer(index ports.AdvisoryIndex, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		lookup: service.NewLookup(index),
		logger: logger,
	}
}

// CheckIOC expects {"value": "<ip>"} and answers with the search result fields.
func (s *GrpcServer) CheckIOC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value := req.GetFields()["value"].GetStringValue()

	result, err := s.lookup.Check(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyQuery) {
			return nil, status.Error(codes.InvalidArgument, "value cannot be empty")
		}
		s.logger.Error("error checking IOC", zap.String("value", value), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to query IOCs")
	}

	resp, err := structpb.NewStruct(searchResultFields(result))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return resp, nil
}

func searchResultFields(result domain.SearchResult) map[string]interface{} {
	matches := make([]interface{}, 0, len(result.Matches))
	for _, m := range result.Matches {
		var published interface{}
		if m.Published != nil {
			published = m.Published.UTC().Format(time.RFC3339)
		}
		matches = append(matches, map[string]interface{}{
			"advisory_id": m.AdvisoryID,
			"title":       m.Title,
			"url":         m.URL,
			"source":      string(m.Source),
			"published":   published,
		})
	}

	return map[string]interface{}{
		"query":         result.Query,
		"normalized_ip": result.NormalizedValue,
		"found":         result.Found,
		"matches":       matches,
	}
}

// LookupClient calls ransomwatch.v1.Lookup on a remote server.
type LookupClient struct {
	conn grpc.ClientConnInterface
}

func NewLookupClient(conn grpc.ClientConnInterface) *LookupClient {
	return &LookupClient{conn: conn}
}

// CheckIOC sends value to the server and decodes the answer.
func (c *LookupClient) CheckIOC(ctx context.Context, value string, opts ...grpc.CallOption) (domain.SearchResult, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"value": value})
	if err != nil {
		return domain.SearchResult{}, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, checkIOCMethod, req, out, opts...); err != nil {
		return domain.SearchResult{}, err
	}

	// The response fields use the same names as the JSON encoding of SearchResult
	data, err := json.Marshal(out.AsMap())
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	var result domain.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.SearchResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Matches == nil {
		result.Matches = []domain.Match{}
	}
	return result, nil
}
