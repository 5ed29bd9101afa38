package classifier

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// featureMap is a C x H x W activation stored channel-major.
type featureMap struct {
	C, H, W int
	Data    []float64
}

func newFeatureMap(c, h, w int) *featureMap {
	return &featureMap{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

func (f *featureMap) channel(c int) []float64 {
	n := f.H * f.W
	return f.Data[c*n : (c+1)*n]
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// conv3x3 is a stride-1, padding-1 convolution evaluated as one matrix
// product over an im2col expansion of the input.
type conv3x3 struct {
	in, out int
	weight  *mat.Dense // out x (in*9)
	bias    []float64
}

func newConv3x3(c Conv) *conv3x3 {
	return &conv3x3{
		in:     c.In,
		out:    c.Out,
		weight: mat.NewDense(c.Out, c.In*9, toFloat64(c.Weight)),
		bias:   toFloat64(c.Bias),
	}
}

func (l *conv3x3) forward(x *featureMap) *featureMap {
	h, w := x.H, x.W
	hw := h * w

	cols := mat.NewDense(l.in*9, hw, nil)
	raw := cols.RawMatrix()
	for c := range l.in {
		src := x.channel(c)
		for ky := range 3 {
			for kx := range 3 {
				row := raw.Data[(c*9+ky*3+kx)*raw.Stride:]
				for y := range h {
					sy := y + ky - 1
					if sy < 0 || sy >= h {
						continue
					}
					for xx := range w {
						sx := xx + kx - 1
						if sx < 0 || sx >= w {
							continue
						}
						row[y*w+xx] = src[sy*w+sx]
					}
				}
			}
		}
	}

	var prod mat.Dense
	prod.Mul(l.weight, cols)

	out := newFeatureMap(l.out, h, w)
	for o := range l.out {
		dst := out.channel(o)
		mat.Row(dst, o, &prod)
		b := l.bias[o]
		for i := range dst {
			dst[i] += b
		}
	}
	return out
}

// batchNorm is inference-mode batch norm folded into a per-channel affine map.
type batchNorm struct {
	scale []float64
	shift []float64
}

func newBatchNorm(n BatchNorm) *batchNorm {
	eps := float64(n.Eps)
	if eps == 0 {
		eps = 1e-5
	}
	bn := &batchNorm{
		scale: make([]float64, len(n.Gamma)),
		shift: make([]float64, len(n.Gamma)),
	}
	for i := range n.Gamma {
		s := float64(n.Gamma[i]) / math.Sqrt(float64(n.Var[i])+eps)
		bn.scale[i] = s
		bn.shift[i] = float64(n.Beta[i]) - float64(n.Mean[i])*s
	}
	return bn
}

// forwardReLU applies batch norm then ReLU in place.
func (bn *batchNorm) forwardReLU(x *featureMap) {
	for c := range x.C {
		s, b := bn.scale[c], bn.shift[c]
		ch := x.channel(c)
		for i, v := range ch {
			ch[i] = math.Max(0, v*s+b)
		}
	}
}

// maxPool2 halves each spatial dimension, dropping an odd trailing row/column.
func maxPool2(x *featureMap) *featureMap {
	h, w := x.H/2, x.W/2
	out := newFeatureMap(x.C, h, w)
	for c := range x.C {
		src := x.channel(c)
		dst := out.channel(c)
		for y := range h {
			for xx := range w {
				i := 2*y*x.W + 2*xx
				dst[y*w+xx] = max(src[i], src[i+1], src[i+x.W], src[i+x.W+1])
			}
		}
	}
	return out
}

func globalAvgPool(x *featureMap) []float64 {
	out := make([]float64, x.C)
	n := float64(x.H * x.W)
	for c := range x.C {
		sum := 0.0
		for _, v := range x.channel(c) {
			sum += v
		}
		out[c] = sum / n
	}
	return out
}

// dense is y = Wx + b. A nil bias means no bias term.
type dense struct {
	weight *mat.Dense
	bias   []float64
}

func newDense(in, out int, weight, bias []float32) *dense {
	d := &dense{weight: mat.NewDense(out, in, toFloat64(weight))}
	if bias != nil {
		d.bias = toFloat64(bias)
	}
	return d
}

func (d *dense) forward(x []float64) []float64 {
	rows, _ := d.weight.Dims()
	var y mat.VecDense
	y.MulVec(d.weight, mat.NewVecDense(len(x), x))

	out := make([]float64, rows)
	for i := range out {
		out[i] = y.AtVec(i)
		if d.bias != nil {
			out[i] += d.bias[i]
		}
	}
	return out
}

// squeezeExcite rescales channels by a gate learned from their mean activation.
type squeezeExcite struct {
	reduce *dense
	expand *dense
}

func newSqueezeExcite(channels int, se SqueezeExcite) *squeezeExcite {
	return &squeezeExcite{
		reduce: newDense(channels, se.Hidden, se.Reduce, nil),
		expand: newDense(se.Hidden, channels, se.Expand, nil),
	}
}

func (s *squeezeExcite) forward(x *featureMap) {
	h := s.reduce.forward(globalAvgPool(x))
	relu(h)
	gate := s.expand.forward(h)
	for c, g := range gate {
		g = sigmoid(g)
		ch := x.channel(c)
		for i := range ch {
			ch[i] *= g
		}
	}
}

func relu(x []float64) {
	for i, v := range x {
		x[i] = math.Max(0, v)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
