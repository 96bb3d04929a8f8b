package neat

import (
	"fmt"
	"math"
)

// ActivationType is a node activation function.
type ActivationType func(x float64) float64

// ActivationFunctions maps configuration names to activation functions.
var ActivationFunctions = map[string]ActivationType{
	"sigmoid":  Sigmoid,
	"tanh":     math.Tanh,
	"relu":     ReLU,
	"identity": Identity,
	"clamped":  Clamped,
	"gaussian": Gaussian,
	"abs":      math.Abs,
	"sin":      math.Sin,
	"hat":      Hat,
	"square":   Square,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationType, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// Sigmoid is the steepened logistic function 1/(1+exp(-4.9x)) used by NEAT.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-4.9*clamp(x, -60, 60)))
}

func ReLU(x float64) float64 { return math.Max(0, x) }

func Identity(x float64) float64 { return x }

// Clamped limits the output to [-1, 1].
func Clamped(x float64) float64 { return clamp(x, -1.0, 1.0) }

func Gaussian(x float64) float64 {
	x = clamp(x, -3.4, 3.4)
	return math.Exp(-5.0 * x * x)
}

// Hat is a triangular pulse centered at 0.
func Hat(x float64) float64 { return math.Max(0.0, 1.0-math.Abs(x)) }

func Square(x float64) float64 { return x * x }
