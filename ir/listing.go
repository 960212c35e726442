package ir

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadListingFile parses a YAML program listing from path.
func ReadListingFile(path string) (*Listing, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := ParseListing(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// ParseListing parses a YAML program listing.
//
// Expressions are written as YAML nodes: an integer is a constant, a plain
// string is a register, and a sequence is an operation with its operator
// first, e.g. [add, rax, 8], [load, rsp], [flag, z], [divu_dp, rdx, rax, rcx].
func ParseListing(buf []byte) (*Listing, error) {
	var doc listingDoc
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, err
	}

	fns := make([]*Function, 0, len(doc.Functions))
	for _, fd := range doc.Functions {
		fn := &Function{Name: fd.Name, Start: fd.Start, External: fd.External}
		for i := range fd.Insts {
			n := &fd.Insts[i]
			var id instDoc
			if err := n.Decode(&id); err != nil {
				return nil, fmt.Errorf("ir: %s[%d]: %w", fd.Name, i, err)
			}
			id.node = n

			inst, err := id.decode(Pos{Addr: id.Addr, Index: i})
			if err != nil {
				return nil, fmt.Errorf("ir: %s[%d]: %w", fd.Name, i, err)
			}
			fn.Insts = append(fn.Insts, inst)
		}
		if !fn.External && len(fn.Insts) == 0 {
			fn.External = true
		}
		fns = append(fns, fn)
	}
	return NewListing(fns...)
}

type listingDoc struct {
	Functions []functionDoc `yaml:"functions"`
}

type functionDoc struct {
	Name     string    `yaml:"name"`
	Start    uint64    `yaml:"start"`
	External bool      `yaml:"external"`
	Insts    []yaml.Node `yaml:"insts"`
}

type instDoc struct {
	Addr   uint64    `yaml:"addr"`
	Op     string    `yaml:"op"`
	Reg    string    `yaml:"reg"`
	High   string    `yaml:"high"`
	Low    string    `yaml:"low"`
	Flag   string    `yaml:"flag"`
	Expr   yaml.Node `yaml:"expr"`
	Dest   yaml.Node `yaml:"dest"`
	Value  yaml.Node `yaml:"value"`
	Target yaml.Node `yaml:"target"`
	Then   uint64    `yaml:"then"`
	Else   uint64    `yaml:"else"`
	Text   string    `yaml:"text"`

	node *yaml.Node
}

func (d *instDoc) decode(pos Pos) (Inst, error) {
	switch d.Op {
	case "set_reg":
		expr, err := d.expr(&d.Expr, "expr")
		if err != nil {
			return nil, err
		}
		return &SetRegister{Pos: pos, Reg: d.Reg, Expr: expr}, nil
	case "set_reg_split":
		expr, err := d.expr(&d.Expr, "expr")
		if err != nil {
			return nil, err
		}
		return &SetRegisterSplit{Pos: pos, High: d.High, Low: d.Low, Expr: expr}, nil
	case "set_flag":
		expr, err := d.expr(&d.Expr, "expr")
		if err != nil {
			return nil, err
		}
		return &SetFlag{Pos: pos, Flag: d.Flag, Expr: expr}, nil
	case "store":
		dest, err := d.expr(&d.Dest, "dest")
		if err != nil {
			return nil, err
		}
		value, err := d.expr(&d.Value, "value")
		if err != nil {
			return nil, err
		}
		return &Store{Pos: pos, Dest: dest, Value: value}, nil
	case "push":
		expr, err := d.expr(&d.Expr, "expr")
		if err != nil {
			return nil, err
		}
		return &Push{Pos: pos, Expr: expr}, nil
	case "jump":
		target, err := d.expr(&d.Target, "target")
		if err != nil {
			return nil, err
		}
		if c, ok := target.(*Constant); ok {
			return &Jump{Pos: pos, Target: c.Value}, nil
		}
		return &IndirectJump{Pos: pos, Target: target}, nil
	case "call":
		target, err := d.expr(&d.Target, "target")
		if err != nil {
			return nil, err
		}
		return &Call{Pos: pos, Target: target}, nil
	case "ret":
		return &Return{Pos: pos}, nil
	case "if":
		cond, err := d.expr(&d.Expr, "expr")
		if err != nil {
			return nil, err
		}
		return &ConditionalBranch{Pos: pos, Cond: cond, True: d.Then, False: d.Else}, nil
	case "goto":
		var index int
		if err := d.Target.Decode(&index); err != nil {
			return nil, fmt.Errorf("goto target: %w", err)
		}
		return &Goto{Pos: pos, Target: index}, nil
	case "nop":
		return &Nop{Pos: pos}, nil
	case "noreturn":
		return &NoReturn{Pos: pos}, nil
	case "syscall":
		return &Syscall{Pos: pos}, nil
	case "bp":
		return &Breakpoint{Pos: pos}, nil
	case "trap":
		return &Trap{Pos: pos}, nil
	case "undefined":
		return &UndefinedInst{Pos: pos, Text: d.Text}, nil
	default:
		// Instructions outside the modeled set keep their source text.
		return &UndefinedInst{Pos: pos, Text: renderNode(d.node)}, nil
	}
}

func (d *instDoc) expr(n *yaml.Node, field string) (Expr, error) {
	if n.Kind == 0 {
		return nil, fmt.Errorf("%s: %s required", d.Op, field)
	}
	expr, err := ParseExprNode(n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return expr, nil
}

// ParseExprNode decodes an expression from a YAML node.
func ParseExprNode(n *yaml.Node) (Expr, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!int" {
			v, err := parseUint(n.Value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return Const(v), nil
		}
		if n.Value == "" {
			return nil, fmt.Errorf("line %d: empty expression", n.Line)
		}
		return Reg(n.Value), nil

	case yaml.SequenceNode:
		if len(n.Content) == 0 {
			return nil, fmt.Errorf("line %d: empty operation", n.Line)
		}
		name := n.Content[0].Value
		args := n.Content[1:]

		switch name {
		case "flag":
			if len(args) != 1 {
				return nil, arityError(n, name, 1)
			}
			return &Flag{Name: args[0].Value}, nil
		case "load":
			if len(args) != 1 {
				return nil, arityError(n, name, 1)
			}
			addr, err := ParseExprNode(args[0])
			if err != nil {
				return nil, err
			}
			return &Load{Addr: addr}, nil
		case "undefined":
			var text string
			if len(args) > 0 {
				text = args[0].Value
			}
			return &Undefined{Text: text}, nil
		}

		if op, ok := lookupDivHiOp(name); ok {
			if len(args) != 3 {
				return nil, arityError(n, name, 3)
			}
			operands, err := parseExprNodes(args)
			if err != nil {
				return nil, err
			}
			return &DivHi{Op: op, High: operands[0], Low: operands[1], Divisor: operands[2]}, nil
		}

		op, ok := lookupOp(name)
		if !ok {
			return &Undefined{Text: renderNode(n)}, nil
		} else if len(args) != 2 {
			return nil, arityError(n, name, 2)
		}
		operands, err := parseExprNodes(args)
		if err != nil {
			return nil, err
		}
		return Bin(op, operands[0], operands[1]), nil

	default:
		return nil, fmt.Errorf("line %d: invalid expression node", n.Line)
	}
}

// renderNode returns n in single-line flow style.
func renderNode(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	flow := *n
	flow.Style |= yaml.FlowStyle
	buf, err := yaml.Marshal(&flow)
	if err != nil {
		return n.Value
	}
	return strings.TrimSpace(string(buf))
}

func parseExprNodes(nodes []*yaml.Node) ([]Expr, error) {
	a := make([]Expr, len(nodes))
	for i, n := range nodes {
		expr, err := ParseExprNode(n)
		if err != nil {
			return nil, err
		}
		a[i] = expr
	}
	return a, nil
}

// parseUint accepts unsigned and negative integers in any Go base notation.
// Negative values wrap to their two's complement representation.
func parseUint(s string) (uint64, error) {
	s = strings.ReplaceAll(s, "_", "")
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		return uint64(v), err
	}
	return strconv.ParseUint(s, 0, 64)
}

func lookupOp(name string) (Op, bool) {
	for op, s := range ops {
		if s != "" && s == name {
			return Op(op), true
		}
	}
	return 0, false
}

func lookupDivHiOp(name string) (DivHiOp, bool) {
	for op, s := range divHiOps {
		if s != "" && s == name {
			return DivHiOp(op), true
		}
	}
	return 0, false
}

func arityError(n *yaml.Node, name string, want int) error {
	return fmt.Errorf("line %d: %s takes %d operands", n.Line, name, want)
}
