// Package tools provides the built-in tool set: arithmetic helpers,
// web search and fetch, and document indexing/search over the memory
// store.
package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/seekerworks/searchagent/action"
)

// MathTools returns the arithmetic tool set.
func MathTools() []action.Tool {
	return []action.Tool{
		binaryOp("add", "Add two numbers", func(a, b float64) (float64, error) { return a + b, nil }),
		binaryOp("subtract", "Subtract b from a", func(a, b float64) (float64, error) { return a - b, nil }),
		binaryOp("multiply", "Multiply two numbers", func(a, b float64) (float64, error) { return a * b, nil }),
		binaryOp("divide", "Divide a by b", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		}),
		binaryOp("power", "Raise a to the power b", func(a, b float64) (float64, error) { return math.Pow(a, b), nil }),
		binaryOp("remainder", "Remainder of a divided by b", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return math.Mod(a, b), nil
		}),
		unaryOp("sqrt", "Square root of a", func(a float64) (float64, error) {
			if a < 0 {
				return 0, fmt.Errorf("sqrt of negative number")
			}
			return math.Sqrt(a), nil
		}),
		unaryOp("cbrt", "Cube root of a", func(a float64) (float64, error) { return math.Cbrt(a), nil }),
		unaryOp("log", "Natural logarithm of a", func(a float64) (float64, error) {
			if a <= 0 {
				return 0, fmt.Errorf("log of non-positive number")
			}
			return math.Log(a), nil
		}),
		unaryOp("sin", "Sine of a (radians)", func(a float64) (float64, error) { return math.Sin(a), nil }),
		unaryOp("cos", "Cosine of a (radians)", func(a float64) (float64, error) { return math.Cos(a), nil }),
		unaryOp("tan", "Tangent of a (radians)", func(a float64) (float64, error) { return math.Tan(a), nil }),
		factorialTool(),
		stringsToCharsTool(),
		exponentialSumTool(),
		fibonacciTool(),
	}
}

func binaryOp(name, description string, fn func(a, b float64) (float64, error)) action.Tool {
	return action.NewFunc(name, description, "a=number, b=number",
		func(_ context.Context, args map[string]string) (string, error) {
			a, err := floatArg(args, "a")
			if err != nil {
				return "", err
			}
			b, err := floatArg(args, "b")
			if err != nil {
				return "", err
			}
			v, err := fn(a, b)
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		})
}

func unaryOp(name, description string, fn func(a float64) (float64, error)) action.Tool {
	return action.NewFunc(name, description, "a=number",
		func(_ context.Context, args map[string]string) (string, error) {
			a, err := floatArg(args, "a")
			if err != nil {
				return "", err
			}
			v, err := fn(a)
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		})
}

func factorialTool() action.Tool {
	return action.NewFunc("factorial", "Factorial of a non-negative integer", "a=int",
		func(_ context.Context, args map[string]string) (string, error) {
			n, err := intArg(args, "a")
			if err != nil {
				return "", err
			}
			if n < 0 {
				return "", fmt.Errorf("factorial of negative number")
			}
			if n > 170 {
				return "", fmt.Errorf("factorial overflow: %d is too large", n)
			}
			result := 1.0
			for i := 2; i <= n; i++ {
				result *= float64(i)
			}
			return formatNumber(result), nil
		})
}

// stringsToCharsTool maps a word to the list of its character codes.
func stringsToCharsTool() action.Tool {
	return action.NewFunc("strings_to_chars_to_int",
		"Convert each character of a string to its ASCII/Unicode code point",
		"string=string",
		func(_ context.Context, args map[string]string) (string, error) {
			s, ok := args["string"]
			if !ok || s == "" {
				return "", fmt.Errorf("missing argument %q", "string")
			}
			codes := make([]string, 0, len(s))
			for _, r := range s {
				codes = append(codes, strconv.Itoa(int(r)))
			}
			return "[" + strings.Join(codes, ", ") + "]", nil
		})
}

// exponentialSumTool sums e^x over a comma-separated list of numbers.
func exponentialSumTool() action.Tool {
	return action.NewFunc("int_list_to_exponential_sum",
		"Sum of e raised to each number in a comma-separated list",
		"numbers=comma-separated numbers",
		func(_ context.Context, args map[string]string) (string, error) {
			raw, ok := args["numbers"]
			if !ok {
				return "", fmt.Errorf("missing argument %q", "numbers")
			}
			raw = strings.Trim(strings.TrimSpace(raw), "[]")
			var sum float64
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				v, err := strconv.ParseFloat(part, 64)
				if err != nil {
					return "", fmt.Errorf("invalid number %q", part)
				}
				sum += math.Exp(v)
			}
			return formatNumber(sum), nil
		})
}

func fibonacciTool() action.Tool {
	return action.NewFunc("fibonacci_numbers", "First n Fibonacci numbers", "n=int",
		func(_ context.Context, args map[string]string) (string, error) {
			n, err := intArg(args, "n")
			if err != nil {
				return "", err
			}
			if n < 0 {
				return "", fmt.Errorf("n must be non-negative")
			}
			if n > 90 {
				return "", fmt.Errorf("n too large: %d", n)
			}
			seq := make([]string, 0, n)
			a, b := int64(0), int64(1)
			for i := 0; i < n; i++ {
				seq = append(seq, strconv.FormatInt(a, 10))
				a, b = b, a+b
			}
			return "[" + strings.Join(seq, ", ") + "]", nil
		})
}

func floatArg(args map[string]string, key string) (float64, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("argument %q is not a number: %q", key, raw)
	}
	return v, nil
}

func intArg(args map[string]string, key string) (int, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("argument %q is not an integer: %q", key, raw)
	}
	return v, nil
}

// formatNumber renders integral values without a trailing ".0" so tool
// output reads naturally in chat.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
