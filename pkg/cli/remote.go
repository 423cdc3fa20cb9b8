package cli

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/funvibe/gobridge/internal/rpc"
	"github.com/funvibe/gobridge/pkg/value"
)

const defaultAddr = "127.0.0.1:7777"

// serve loads a unit and exposes its functions over gRPC until ctx is done.
//
// Usage: gobridge serve <file.go> [--addr host:port]
func (e *env) serve(ctx context.Context, args []string) int {
	addr := defaultAddr
	var path string
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "--addr" && i+1 < len(args):
			i++
			addr = args[i]
		case strings.HasPrefix(a, "--addr="):
			addr = strings.TrimPrefix(a, "--addr=")
		case path == "" && !strings.HasPrefix(a, "-"):
			path = a
		default:
			return e.errorf("usage: gobridge serve <file.go> [--addr host:port]")
		}
	}
	if path == "" {
		return e.errorf("usage: gobridge serve <file.go> [--addr host:port]")
	}

	hctx, done, err := e.loadUnit(ctx, path)
	if err != nil {
		return e.errorf("%v", err)
	}
	defer done()

	srv, err := rpc.NewServer(hctx.Scope())
	if err != nil {
		return e.errorf("%v", err)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return e.errorf("%v", err)
	}
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	fmt.Fprintf(e.stdout, "Serving %s on %s (Ctrl-C to stop)\n", path, lis.Addr())
	if err := srv.Serve(lis); err != nil {
		return e.errorf("%v", err)
	}
	return 0
}

// remote lists or calls the functions of a running server.
//
// Usage: gobridge rpc <addr> list
//
//	gobridge rpc <addr> <func> [args...]
func (e *env) remote(ctx context.Context, args []string) int {
	if len(args) < 2 {
		return e.errorf("usage: gobridge rpc <addr> list|<func> [args...]")
	}
	addr, name, raw := args[0], args[1], args[2:]

	c, err := rpc.Dial(addr)
	if err != nil {
		return e.errorf("%v", err)
	}
	defer c.Close()

	fns, err := c.List(ctx)
	if err != nil {
		return e.errorf("%s: %v", addr, err)
	}
	if name == "list" && len(raw) == 0 {
		for _, fn := range fns {
			fmt.Fprintf(e.stdout, "func %s%s\n", fn.Name, fn.Signature)
		}
		return 0
	}

	var (
		fn    rpc.FunctionInfo
		found bool
		names []string
	)
	for _, f := range fns {
		names = append(names, f.Name)
		if f.Name == name {
			fn, found = f, true
		}
	}
	if !found {
		return e.errorf("%s: no function %s (have %s)", addr, name, strings.Join(names, ", "))
	}

	vals, err := parseRemoteArgs(fn, raw)
	if err != nil {
		return e.errorf("%s: %v", name, err)
	}
	defer func() {
		for _, v := range vals {
			v.Release()
		}
	}()

	res, err := c.Call(ctx, name, vals...)
	if err != nil {
		return e.errorf("%v", err)
	}
	defer res.Release()
	if !value.IsNull(res) {
		fmt.Fprintln(e.stdout, formatValue(res))
	}
	return 0
}
