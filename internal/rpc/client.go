package rpc

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/funvibe/gobridge/pkg/value"
)

// FunctionInfo describes a remote function.
type FunctionInfo struct {
	Name       string
	Signature  string
	ParamKinds []value.ID
	Variadic   bool
}

// Client calls a remote Bridge service.
type Client struct {
	conn   *grpc.ClientConn
	schema *Schema
	owned  bool
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	c, err := NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// NewClient uses an existing connection. Close does not close it.
func NewClient(conn *grpc.ClientConn) (*Client, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, schema: schema}, nil
}

// Close closes the connection if the client opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp *dynamic.Message) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp)
}

// List returns the functions the server exposes, in definition order.
func (c *Client) List(ctx context.Context) ([]FunctionInfo, error) {
	resp := dynamic.NewMessage(c.schema.listResponse)
	if err := c.invoke(ctx, "List", dynamic.NewMessage(c.schema.listRequest), resp); err != nil {
		return nil, err
	}
	raw, _ := field[[]any](resp, "functions")
	out := make([]FunctionInfo, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(*dynamic.Message)
		if !ok {
			return nil, fmt.Errorf("function info is %T", r)
		}
		var info FunctionInfo
		info.Name, _ = field[string](m, "name")
		info.Signature, _ = field[string](m, "signature")
		info.Variadic, _ = field[bool](m, "variadic")
		kinds, _ := field[[]any](m, "param_kinds")
		for _, k := range kinds {
			if id, ok := k.(int32); ok {
				info.ParamKinds = append(info.ParamKinds, value.ID(id))
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Call invokes name with args. The arguments stay owned by the caller; the
// result is owned by the caller.
func (c *Client) Call(ctx context.Context, name string, args ...*value.Value) (*value.Value, error) {
	req := dynamic.NewMessage(c.schema.callRequest)
	if err := req.TrySetFieldByName("function", name); err != nil {
		return nil, err
	}
	for i, a := range args {
		m, err := c.schema.EncodeValue(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		if err := req.TryAddRepeatedFieldByName("args", m); err != nil {
			return nil, err
		}
	}

	resp := dynamic.NewMessage(c.schema.callResponse)
	if err := c.invoke(ctx, "Call", req, resp); err != nil {
		return nil, err
	}
	res, ok := field[*dynamic.Message](resp, "result")
	if !ok || res == nil {
		return value.CreateNull(), nil
	}
	return c.schema.DecodeValue(res)
}
