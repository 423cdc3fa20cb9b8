package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/logger"
	"github.com/funvibe/gobridge/pkg/value"
)

// Server exposes the functions bound in a host scope.
type Server struct {
	scope  *host.Scope
	schema *Schema
	grpc   *grpc.Server
	log    *slog.Logger
}

type unaryHandler func(ctx context.Context, in *dynamic.Message) (any, error)

// NewServer creates a server for the functions in scope. Classes and other
// bindings are not exposed.
func NewServer(scope *host.Scope, opts ...grpc.ServerOption) (*Server, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	s := &Server{
		scope:  scope,
		schema: schema,
		grpc:   grpc.NewServer(opts...),
		log:    logger.Component("rpc"),
	}

	handlers := map[string]unaryHandler{
		"Call": s.call,
		"List": s.list,
	}
	sd := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Metadata:    schemaFile,
	}
	for _, md := range schema.service.GetMethods() {
		h, ok := handlers[md.GetName()]
		if !ok {
			return nil, fmt.Errorf("no handler for %s", md.GetFullyQualifiedName())
		}
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler:    methodHandler(md, h),
		})
	}
	s.grpc.RegisterService(sd, s)
	return s, nil
}

func methodHandler(md *desc.MethodDescriptor, h unaryHandler) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + md.GetName()
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamic.NewMessage(md.GetInputType())
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h(ctx, req.(*dynamic.Message))
		})
	}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("serving", "addr", lis.Addr().String(), "functions", len(s.functions()))
	return s.grpc.Serve(lis)
}

// Stop waits for pending calls and stops the server.
func (s *Server) Stop() { s.grpc.GracefulStop() }

func (s *Server) functions() []*host.Function {
	var out []*host.Function
	for _, name := range s.scope.Names() {
		if f, err := s.scope.Function(name); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func (s *Server) list(_ context.Context, _ *dynamic.Message) (any, error) {
	resp := dynamic.NewMessage(s.schema.listResponse)
	for _, f := range s.functions() {
		sig := f.Signature()
		info := dynamic.NewMessage(s.schema.functionInfo)
		info.SetFieldByName("name", f.Name)
		info.SetFieldByName("signature", sig.String())
		for i := 0; i < sig.Count(); i++ {
			kind := int32(AnyKind)
			if _, t := sig.Arg(i); t != nil {
				kind = int32(t.ID)
			}
			info.AddRepeatedFieldByName("param_kinds", kind)
		}
		info.SetFieldByName("variadic", sig.Variadic())
		resp.AddRepeatedFieldByName("functions", info)
	}
	return resp, nil
}

func (s *Server) call(_ context.Context, in *dynamic.Message) (any, error) {
	name, _ := field[string](in, "function")
	f, err := s.scope.Function(name)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	raw, _ := field[[]any](in, "args")
	args := make([]*value.Value, 0, len(raw))
	defer func() { releaseAll(args) }()
	for i, r := range raw {
		m, ok := r.(*dynamic.Message)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "argument %d is %T", i, r)
		}
		v, err := s.schema.DecodeValue(m)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "argument %d: %v", i, err)
		}
		args = append(args, v)
	}

	res, err := f.Call(args...)
	if err != nil {
		s.log.Debug("call failed", "function", name, "err", err)
		var ke *value.KindError
		if errors.Is(err, host.ErrArgCount) || errors.As(err, &ke) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	defer res.Release()

	out, err := s.schema.EncodeValue(res)
	if err != nil {
		return nil, status.Errorf(codes.FailedPrecondition, "%s: result: %v", name, err)
	}
	resp := dynamic.NewMessage(s.schema.callResponse)
	if err := resp.TrySetFieldByName("result", out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}
