package script

import (
	"fmt"

	"github.com/chainkit/ledger/pkg/hashutil"
	"github.com/chainkit/ledger/pkg/walletkey"
)

// Engine runs a token list against a message (the signature message
// OP_CHECKSIG/OP_CHECKMULSIG verify against) and reports whether the
// script resolved to a truthy top-of-stack with no equality-check
// failures along the way.
type Engine struct {
	stack   *Stack
	message []byte
	failed  bool
}

// NewEngine creates an engine for evaluating a script against message.
func NewEngine(message []byte) *Engine {
	return &Engine{stack: NewStack(), message: message}
}

// Run evaluates every token in script in order and returns the final
// top-of-stack value. A failed OP_EQ check, an empty script or a stack
// left empty at the end yields false; an error is returned only when an
// opcode cannot run (stack underflow or a wrongly typed operand).
func (e *Engine) Run(tokens []interface{}) (interface{}, error) {
	for _, tok := range tokens {
		if err := e.eval(tok); err != nil {
			return nil, err
		}
		if e.failed {
			return false, nil
		}
	}
	top, err := e.stack.Top()
	if err != nil {
		return false, nil
	}
	return top, nil
}

func (e *Engine) eval(tok interface{}) error {
	if op, ok := tok.(string); ok {
		if fn, isOp := opcodes[op]; isOp {
			return fn(e)
		}
	}
	e.stack.Push(tok)
	return nil
}

type opcodeFunc func(*Engine) error

var opcodes = map[string]opcodeFunc{
	"OP_ADD":        opAdd,
	"OP_MINUS":      opMinus,
	"OP_MUL":        opMul,
	"OP_EQ":         opEqualCheck,
	"OP_EQUAL":      opEqual,
	"OP_DUP":        opDup,
	"OP_NDUP":       opNDup,
	"OP_ADDR":       opAddr,
	"OP_CHECKSIG":   opCheckSig,
	"OP_MULHASH":    opMulHash,
	"OP_CHECKMULSIG": opCheckMulSig,
}

func asInt64(v interface{}) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("script: expected int64 operand, got %T", v)
	}
	return n, nil
}

func asBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("script: expected bytes/string operand, got %T", v)
	}
}

func opAdd(e *Engine) error {
	a, err := e.stack.Pop()
	if err != nil {
		return err
	}
	b, err := e.stack.Pop()
	if err != nil {
		return err
	}
	av, err := asInt64(a)
	if err != nil {
		return err
	}
	bv, err := asInt64(b)
	if err != nil {
		return err
	}
	e.stack.Push(av + bv)
	return nil
}

func opMinus(e *Engine) error {
	last, err := e.stack.Pop()
	if err != nil {
		return err
	}
	prev, err := e.stack.Pop()
	if err != nil {
		return err
	}
	lastV, err := asInt64(last)
	if err != nil {
		return err
	}
	prevV, err := asInt64(prev)
	if err != nil {
		return err
	}
	e.stack.Push(prevV - lastV)
	return nil
}

func opMul(e *Engine) error {
	a, err := e.stack.Pop()
	if err != nil {
		return err
	}
	b, err := e.stack.Pop()
	if err != nil {
		return err
	}
	av, err := asInt64(a)
	if err != nil {
		return err
	}
	bv, err := asInt64(b)
	if err != nil {
		return err
	}
	e.stack.Push(av * bv)
	return nil
}

func opEqualCheck(e *Engine) error {
	a, err := e.stack.Pop()
	if err != nil {
		return err
	}
	b, err := e.stack.Pop()
	if err != nil {
		return err
	}
	if !valuesEqual(a, b) {
		e.failed = true
	}
	return nil
}

func opEqual(e *Engine) error {
	a, err := e.stack.Pop()
	if err != nil {
		return err
	}
	b, err := e.stack.Pop()
	if err != nil {
		return err
	}
	e.stack.Push(valuesEqual(a, b))
	return nil
}

func valuesEqual(a, b interface{}) bool {
	ab, aIsBytes := a.([]byte)
	bb, bIsBytes := b.([]byte)
	if aIsBytes && bIsBytes {
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func opDup(e *Engine) error {
	top, err := e.stack.Top()
	if err != nil {
		return err
	}
	e.stack.Push(top)
	return nil
}

func opNDup(e *Engine) error {
	nVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	n, err := asInt64(nVal)
	if err != nil {
		return err
	}
	tail, err := e.stack.Tail(int(n))
	if err != nil {
		return err
	}
	for _, v := range tail {
		e.stack.Push(v)
	}
	e.stack.Push(n)
	return nil
}

func opAddr(e *Engine) error {
	pkVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	pk, err := asBytes(pkVal)
	if err != nil {
		return err
	}
	e.stack.Push(hashutil.AddressFromPubkey(pk))
	return nil
}

func opCheckSig(e *Engine) error {
	pkVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	sigVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	pk, err := asBytes(pkVal)
	if err != nil {
		return err
	}
	sig, err := asBytes(sigVal)
	if err != nil {
		return err
	}
	e.stack.Push(walletkey.VerifyBytes(pk, e.message, sig))
	return nil
}

func opMulHash(e *Engine) error {
	nVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	n, err := asInt64(nVal)
	if err != nil {
		return err
	}
	pkStrs := make([][]byte, n)
	for i := int64(0); i < n; i++ {
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		b, err := asBytes(v)
		if err != nil {
			return err
		}
		pkStrs[i] = b
	}
	var concat []byte
	for i := len(pkStrs) - 1; i >= 0; i-- {
		concat = append(concat, pkStrs[i]...)
	}
	e.stack.Push(hashutil.Sha256dBytes(concat))
	return nil
}

func opCheckMulSig(e *Engine) error {
	nVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	n, err := asInt64(nVal)
	if err != nil {
		return err
	}
	pkStrs := make([][]byte, n)
	for i := int64(0); i < n; i++ {
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		b, err := asBytes(v)
		if err != nil {
			return err
		}
		pkStrs[i] = b
	}
	mVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	m, err := asInt64(mVal)
	if err != nil {
		return err
	}
	sigs := make([][]byte, m)
	for i := int64(0); i < m; i++ {
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		b, err := asBytes(v)
		if err != nil {
			return err
		}
		sigs[i] = b
	}
	if int64(len(pkStrs)) < m {
		return fmt.Errorf("script: OP_CHECKMULSIG needs %d pubkeys, got %d", m, len(pkStrs))
	}
	pkStrs = pkStrs[int64(len(pkStrs))-m:]
	for i := int64(0); i < m; i++ {
		ok := walletkey.VerifyBytes(pkStrs[i], e.message, sigs[i])
		if !ok {
			break
		}
		e.stack.Push(ok)
	}
	return nil
}
