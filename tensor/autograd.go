package tensor

// attachOp links an operation into the autograd graph when any of its inputs
// participate in gradient computation.
func attachOp(out *Tensor, op Operation, inputs []*Tensor) {
	for _, in := range inputs {
		if in.requiresGrad || in.creator != nil {
			out.creator = op
			out.requiresGrad = true
			return
		}
	}
}

// AddOp implements addition with broadcasting.
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

func (op *AddOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// AddAutograd performs addition with automatic differentiation.
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	attachOp(out, &AddOp{inputs: []*Tensor{a, b}}, []*Tensor{a, b})
	return out, nil
}

// SubOp implements subtraction with broadcasting.
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

func (op *SubOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		return nil, err
	}
	neg, err := unaryOp(gradOut, func(x float32) float32 { return -x })
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(neg, op.inputs[1].Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// SubAutograd performs subtraction with automatic differentiation.
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Sub(a, b)
	if err != nil {
		return nil, err
	}
	attachOp(out, &SubOp{inputs: []*Tensor{a, b}}, []*Tensor{a, b})
	return out, nil
}

// MulOp implements elementwise multiplication with broadcasting.
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

func (op *MulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	a, b := op.inputs[0], op.inputs[1]
	gradAFull, err := Mul(gradOut, b)
	if err != nil {
		return nil, err
	}
	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		return nil, err
	}
	gradBFull, err := Mul(gradOut, a)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// MulAutograd performs elementwise multiplication with automatic
// differentiation.
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	attachOp(out, &MulOp{inputs: []*Tensor{a, b}}, []*Tensor{a, b})
	return out, nil
}

// DivOp implements elementwise division with broadcasting.
type DivOp struct {
	inputs []*Tensor
}

func (op *DivOp) Inputs() []*Tensor { return op.inputs }

func (op *DivOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	a, b := op.inputs[0], op.inputs[1]

	// d(a/b)/da = 1/b
	gradAFull, err := Div(gradOut, b)
	if err != nil {
		return nil, err
	}
	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		return nil, err
	}

	// d(a/b)/db = -a/b^2
	bSquared, err := Mul(b, b)
	if err != nil {
		return nil, err
	}
	ratio, err := Div(a, bSquared)
	if err != nil {
		return nil, err
	}
	negRatio, err := unaryOp(ratio, func(x float32) float32 { return -x })
	if err != nil {
		return nil, err
	}
	gradBFull, err := Mul(gradOut, negRatio)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// DivAutograd performs elementwise division with automatic differentiation.
func DivAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Div(a, b)
	if err != nil {
		return nil, err
	}
	attachOp(out, &DivOp{inputs: []*Tensor{a, b}}, []*Tensor{a, b})
	return out, nil
}

// MatMulOp implements 2D matrix multiplication.
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

func (op *MatMulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	a, b := op.inputs[0], op.inputs[1]

	bT, err := Transpose(b)
	if err != nil {
		return nil, err
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		return nil, err
	}

	aT, err := Transpose(a)
	if err != nil {
		return nil, err
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// MatMulAutograd performs matrix multiplication with automatic
// differentiation.
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	attachOp(out, &MatMulOp{inputs: []*Tensor{a, b}}, []*Tensor{a, b})
	return out, nil
}

// TanhOp implements the hyperbolic tangent; the forward output is saved for
// the backward pass.
type TanhOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *TanhOp) Inputs() []*Tensor { return op.inputs }

func (op *TanhOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d tanh(x)/dx = 1 - tanh(x)^2
	ySq, err := Mul(op.output, op.output)
	if err != nil {
		return nil, err
	}
	oneMinus, err := unaryOp(ySq, func(x float32) float32 { return 1 - x })
	if err != nil {
		return nil, err
	}
	grad, err := Mul(gradOut, oneMinus)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// TanhAutograd applies tanh with automatic differentiation.
func TanhAutograd(a *Tensor) (*Tensor, error) {
	out, err := Tanh(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &TanhOp{inputs: []*Tensor{a}, output: out}, []*Tensor{a})
	return out, nil
}

// SigmoidOp implements the logistic function; the forward output is saved
// for the backward pass.
type SigmoidOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *SigmoidOp) Inputs() []*Tensor { return op.inputs }

func (op *SigmoidOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d sigma(x)/dx = sigma(x) * (1 - sigma(x))
	oneMinus, err := unaryOp(op.output, func(x float32) float32 { return 1 - x })
	if err != nil {
		return nil, err
	}
	local, err := Mul(op.output, oneMinus)
	if err != nil {
		return nil, err
	}
	grad, err := Mul(gradOut, local)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SigmoidAutograd applies the logistic function with automatic
// differentiation.
func SigmoidAutograd(a *Tensor) (*Tensor, error) {
	out, err := Sigmoid(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &SigmoidOp{inputs: []*Tensor{a}, output: out}, []*Tensor{a})
	return out, nil
}

// ExpOp implements the exponential; the forward output is saved for the
// backward pass.
type ExpOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *ExpOp) Inputs() []*Tensor { return op.inputs }

func (op *ExpOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Mul(gradOut, op.output)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// ExpAutograd applies the exponential with automatic differentiation.
func ExpAutograd(a *Tensor) (*Tensor, error) {
	out, err := Exp(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &ExpOp{inputs: []*Tensor{a}, output: out}, []*Tensor{a})
	return out, nil
}

// LogOp implements the natural logarithm.
type LogOp struct {
	inputs []*Tensor
}

func (op *LogOp) Inputs() []*Tensor { return op.inputs }

func (op *LogOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Div(gradOut, op.inputs[0])
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// LogAutograd applies the natural logarithm with automatic differentiation.
func LogAutograd(a *Tensor) (*Tensor, error) {
	out, err := Log(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &LogOp{inputs: []*Tensor{a}}, []*Tensor{a})
	return out, nil
}

// SoftplusOp implements log(1+exp(x)).
type SoftplusOp struct {
	inputs []*Tensor
}

func (op *SoftplusOp) Inputs() []*Tensor { return op.inputs }

func (op *SoftplusOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d softplus(x)/dx = sigma(x)
	local, err := Sigmoid(op.inputs[0])
	if err != nil {
		return nil, err
	}
	grad, err := Mul(gradOut, local)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SoftplusAutograd applies softplus with automatic differentiation.
func SoftplusAutograd(a *Tensor) (*Tensor, error) {
	out, err := Softplus(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &SoftplusOp{inputs: []*Tensor{a}}, []*Tensor{a})
	return out, nil
}

// SumAllOp reduces a tensor to its scalar sum.
type SumAllOp struct {
	inputs []*Tensor
}

func (op *SumAllOp) Inputs() []*Tensor { return op.inputs }

func (op *SumAllOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	v, err := gradOut.Item()
	if err != nil {
		return nil, err
	}
	grad, err := Full(op.inputs[0].Shape, float32(v))
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SumAllAutograd reduces to a [1] scalar with automatic differentiation.
func SumAllAutograd(a *Tensor) (*Tensor, error) {
	out, err := SumAll(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &SumAllOp{inputs: []*Tensor{a}}, []*Tensor{a})
	return out, nil
}

// LogSumExpOp reduces the last dimension to log(sum(exp(x))), keeping it as
// size 1. Both the input and output are saved so the backward pass can form
// the softmax weights exp(x - lse(x)).
type LogSumExpOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *LogSumExpOp) Inputs() []*Tensor { return op.inputs }

func (op *LogSumExpOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	shifted, err := Sub(op.inputs[0], op.output)
	if err != nil {
		return nil, err
	}
	weights, err := Exp(shifted)
	if err != nil {
		return nil, err
	}
	grad, err := Mul(gradOut, weights)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// LogSumExpAutograd reduces the last dimension with automatic
// differentiation.
func LogSumExpAutograd(a *Tensor) (*Tensor, error) {
	out, err := LogSumExp(a)
	if err != nil {
		return nil, err
	}
	attachOp(out, &LogSumExpOp{inputs: []*Tensor{a}, output: out}, []*Tensor{a})
	return out, nil
}

// ScaleAutograd multiplies a tensor by a scalar constant with automatic
// differentiation.
func ScaleAutograd(a *Tensor, value float64) (*Tensor, error) {
	return MulAutograd(a, FromScalar(value))
}
