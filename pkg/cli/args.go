package cli

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/rpc"
	"github.com/funvibe/gobridge/pkg/value"
)

// param is a declared parameter; kind is rpc.AnyKind when untyped.
type param struct {
	name string
	kind value.ID
}

// parseArgs converts command line arguments to values of the parameter
// types of sig. Arguments beyond the declared ones, accepted by variadic
// signatures, are parsed as YAML scalars or flow collections.
func parseArgs(sig *host.Signature, raw []string) ([]*value.Value, error) {
	if !sig.Accepts(len(raw)) {
		return nil, fmt.Errorf("expected %d arguments %s, got %d", sig.Count(), sig, len(raw))
	}
	params := make([]param, sig.Count())
	for i := range params {
		name, t := sig.Arg(i)
		params[i] = param{name: name, kind: rpc.AnyKind}
		if t != nil {
			params[i].kind = t.ID
		}
	}
	return parseParams(params, raw)
}

// parseRemoteArgs is parseArgs for a function listed by a remote server.
func parseRemoteArgs(fn rpc.FunctionInfo, raw []string) ([]*value.Value, error) {
	n := len(fn.ParamKinds)
	if len(raw) < n || (!fn.Variadic && len(raw) != n) {
		return nil, fmt.Errorf("expected %d arguments %s, got %d", n, fn.Signature, len(raw))
	}
	params := make([]param, n)
	for i, k := range fn.ParamKinds {
		params[i] = param{name: strconv.Itoa(i), kind: k}
	}
	return parseParams(params, raw)
}

func parseParams(params []param, raw []string) ([]*value.Value, error) {
	vals := make([]*value.Value, 0, len(raw))
	fail := func(err error) ([]*value.Value, error) {
		for _, v := range vals {
			v.Release()
		}
		return nil, err
	}
	for i, s := range raw {
		var (
			v   *value.Value
			err error
		)
		switch {
		case i < len(params) && params[i].kind != rpc.AnyKind:
			v, err = parseTyped(params[i].kind, s)
			if err != nil {
				err = fmt.Errorf("argument %s: %w", params[i].name, err)
			}
		default:
			v, err = parseYAML(s)
			if err != nil {
				err = fmt.Errorf("argument %d: %w", i, err)
			}
		}
		if err != nil {
			return fail(err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func parseTyped(id value.ID, s string) (*value.Value, error) {
	switch id {
	case value.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		return value.CreateBool(b), nil
	case value.Char, value.Short, value.Int, value.Long:
		bits := map[value.ID]int{value.Char: 8, value.Short: 16, value.Int: 32, value.Long: 64}[id]
		n, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return nil, err
		}
		switch id {
		case value.Char:
			return value.CreateChar(int8(n)), nil
		case value.Short:
			return value.CreateShort(int16(n)), nil
		case value.Int:
			return value.CreateInt(int32(n)), nil
		}
		return value.CreateLong(n), nil
	case value.Float:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return value.CreateFloat(float32(f)), nil
	case value.Double:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return value.CreateDouble(f), nil
	case value.String:
		return value.CreateString(s), nil
	case value.Buffer:
		return value.CreateBuffer([]byte(s)), nil
	case value.Array, value.Map:
		return parseYAML(s)
	}
	return nil, fmt.Errorf("%s values cannot be passed on the command line", id)
}

// parseYAML decodes s as YAML and converts the result with the natural
// mapping: integers are Long, floats Double.
func parseYAML(s string) (*value.Value, error) {
	var x any
	if err := yaml.Unmarshal([]byte(s), &x); err != nil {
		return nil, err
	}
	if x == nil {
		return value.CreateNull(), nil
	}
	return value.FromNative(x)
}

// formatValue renders v for terminal output.
func formatValue(v *value.Value) string {
	switch value.TypeID(v) {
	case value.Null:
		return "null"
	case value.String:
		return value.ToString(v)
	case value.Buffer:
		return fmt.Sprintf("%q", value.ToBuffer(v))
	case value.Object, value.Class, value.Function, value.Pointer:
		return v.String()
	}
	rv, err := value.ToNative(v, nil)
	if err != nil {
		return v.String()
	}
	if id := value.TypeID(v); id == value.Array || id == value.Map {
		out, err := yaml.Marshal(rv.Interface())
		if err == nil {
			return flowYAML(out)
		}
	}
	return fmt.Sprint(rv.Interface())
}

// flowYAML re-encodes block YAML in flow style on a single line.
func flowYAML(block []byte) string {
	var node yaml.Node
	if err := yaml.Unmarshal(block, &node); err != nil {
		return string(block)
	}
	setFlow(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return string(block)
	}
	return string(trimNewline(out))
}

func setFlow(n *yaml.Node) {
	if n.Kind == yaml.SequenceNode || n.Kind == yaml.MappingNode {
		n.Style = yaml.FlowStyle
	}
	for _, c := range n.Content {
		setFlow(c)
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	return b
}
