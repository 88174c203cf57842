// Package model fits and evaluates the L2-regularized logistic regression
// classifier that predicts whether a shot is made.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	SolverLBFGS = "lbfgs"
	SolverGD    = "gd"
)

// Params is the hyperparameter configuration a classifier was fitted with.
// C is the inverse regularization strength.
type Params struct {
	Solver       string  `json:"solver"`
	C            float64 `json:"c"`
	MaxIter      int     `json:"max_iter"`
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// DefaultParams mirrors the configuration the served model is trained with.
func DefaultParams() Params {
	return Params{Solver: SolverLBFGS, C: 1.0, MaxIter: 1000, LearningRate: 0.1}
}

func (p Params) Validate() error {
	switch p.Solver {
	case SolverLBFGS:
	case SolverGD:
		if p.LearningRate <= 0 {
			return fmt.Errorf("gd solver needs a positive learning rate, got %v", p.LearningRate)
		}
	default:
		return fmt.Errorf("unknown solver %q", p.Solver)
	}
	if p.C <= 0 {
		return fmt.Errorf("C must be positive, got %v", p.C)
	}
	if p.MaxIter <= 0 {
		return fmt.Errorf("max_iter must be positive, got %d", p.MaxIter)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("solver=%s C=%g max_iter=%d", p.Solver, p.C, p.MaxIter)
}

// Classifier is a fitted model. It is immutable after Fit and safe for
// concurrent use.
type Classifier struct {
	Weights   []float64
	Intercept float64
}

// Fit trains a classifier on rows x with 0/1 labels y.
func Fit(ctx context.Context, x [][]float64, y []int, p Params) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels", len(x), len(y))
	}

	obj, err := newObjective(x, y, p.C)
	if err != nil {
		return nil, err
	}

	var theta []float64
	switch p.Solver {
	case SolverLBFGS:
		theta, err = obj.minimizeLBFGS(ctx, p.MaxIter)
	case SolverGD:
		theta, err = obj.minimizeGD(ctx, p.MaxIter, p.LearningRate)
	}
	if err != nil {
		return nil, err
	}

	d := obj.x.RawMatrix().Cols
	return &Classifier{Weights: theta[:d:d], Intercept: theta[d]}, nil
}

// Probability returns P(made | row).
func (c *Classifier) Probability(row []float64) float64 {
	return sigmoid(floats.Dot(c.Weights, row) + c.Intercept)
}

// PredictOne returns 1 when the shot is predicted made.
func (c *Classifier) PredictOne(row []float64) int {
	if floats.Dot(c.Weights, row)+c.Intercept > 0 {
		return 1
	}
	return 0
}

// Predict labels every row.
func (c *Classifier) Predict(rows [][]float64) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = c.PredictOne(r)
	}
	return out
}

// Accuracy is the fraction of exact label matches.
func Accuracy(want, got []int) float64 {
	if len(want) == 0 || len(want) != len(got) {
		return 0
	}
	hits := 0
	for i := range want {
		if want[i] == got[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

// objective is the mean log-loss plus ||w||^2 / (2*C*n) over
// theta = [w..., intercept]. The intercept is not regularized.
type objective struct {
	x      *mat.Dense
	y      []float64
	n      float64
	lambda float64

	z   *mat.VecDense
	res *mat.VecDense
	gw  *mat.VecDense
}

func newObjective(x [][]float64, y []int, c float64) (*objective, error) {
	n, d := len(x), len(x[0])
	if d == 0 {
		return nil, errors.New("rows have no features")
	}
	data := make([]float64, 0, n*d)
	yf := make([]float64, n)
	for i, row := range x {
		if len(row) != d {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), d)
		}
		data = append(data, row...)
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("label %d at row %d is not 0 or 1", y[i], i)
		}
		yf[i] = float64(y[i])
	}
	return &objective{
		x:      mat.NewDense(n, d, data),
		y:      yf,
		n:      float64(n),
		lambda: 1 / (c * float64(n)),
		z:      mat.NewVecDense(n, nil),
		res:    mat.NewVecDense(n, nil),
		gw:     mat.NewVecDense(d, nil),
	}, nil
}

func (o *objective) margins(theta []float64) {
	d := len(theta) - 1
	o.z.MulVec(o.x, mat.NewVecDense(d, theta[:d]))
	b := theta[d]
	for i := 0; i < o.z.Len(); i++ {
		o.z.SetVec(i, o.z.AtVec(i)+b)
	}
}

func (o *objective) loss(theta []float64) float64 {
	o.margins(theta)
	var sum float64
	for i, yi := range o.y {
		zi := o.z.AtVec(i)
		sum += log1pexp(zi) - yi*zi
	}
	w := theta[:len(theta)-1]
	return sum/o.n + 0.5*o.lambda*floats.Dot(w, w)
}

func (o *objective) grad(g, theta []float64) {
	o.margins(theta)
	var gb float64
	for i, yi := range o.y {
		r := sigmoid(o.z.AtVec(i)) - yi
		o.res.SetVec(i, r)
		gb += r
	}
	o.gw.MulVec(o.x.T(), o.res)

	d := len(theta) - 1
	for j := 0; j < d; j++ {
		g[j] = o.gw.AtVec(j)/o.n + o.lambda*theta[j]
	}
	g[d] = gb / o.n
}

func (o *objective) minimizeLBFGS(ctx context.Context, maxIter int) ([]float64, error) {
	problem := optimize.Problem{Func: o.loss, Grad: o.grad}
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: 1e-6,
		Recorder:          ctxRecorder{ctx},
	}

	init := make([]float64, o.x.RawMatrix().Cols+1)
	result, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if result == nil {
		return nil, fmt.Errorf("lbfgs: %w", err)
	}
	// Iteration limits and line search stalls still leave the best location
	// found, which is what a capped solver is expected to return.
	if floats.HasNaN(result.X) {
		return nil, fmt.Errorf("lbfgs diverged (status %v): %w", result.Status, err)
	}
	return result.X, nil
}

func (o *objective) minimizeGD(ctx context.Context, maxIter int, rate float64) ([]float64, error) {
	theta := make([]float64, o.x.RawMatrix().Cols+1)
	g := make([]float64, len(theta))
	for it := 0; it < maxIter; it++ {
		if it%50 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		o.grad(g, theta)
		if floats.Norm(g, 2) < 1e-6 {
			break
		}
		floats.AddScaled(theta, -rate, g)
	}
	if floats.HasNaN(theta) {
		return nil, errors.New("gradient descent diverged")
	}
	return theta, nil
}

// ctxRecorder stops the optimizer once ctx is done.
type ctxRecorder struct{ ctx context.Context }

func (r ctxRecorder) Init() error { return r.ctx.Err() }

func (r ctxRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// log1pexp computes log(1 + e^z) without overflow.
func log1pexp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
