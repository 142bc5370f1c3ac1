// Package classifier wraps the raw image-classification model with
// fixed preprocessing so callers hand it a decoded RGB image of any
// size and get back one probability per vocabulary class.
package classifier

import (
	"fmt"
	"image"
)

// Runner is the opaque inference function over a preprocessed image
// tensor. The production implementation is an ONNX session; tests
// inject stubs.
type Runner interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// InferenceError reports a per-request inference failure, including an
// output vector whose length does not match the vocabulary. A length
// mismatch is surfaced, never padded or truncated.
type InferenceError struct {
	Got  int
	Want int
	Err  error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference: %v", e.Err)
	}
	return fmt.Sprintf("model returned %d probabilities, vocabulary has %d", e.Got, e.Want)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ModelLoadError reports a failure loading the model artifact. It is
// fatal at startup.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Classifier is the wrapped model: preprocessing composed with the raw
// runner. It is read-only after construction and shared by all
// requests.
type Classifier struct {
	wrapper Wrapper
	runner  Runner
}

func New(wrapper Wrapper, runner Runner) *Classifier {
	return &Classifier{wrapper: wrapper, runner: runner}
}

// Classes returns the vocabulary in output-vector order.
func (c *Classifier) Classes() []string {
	return c.wrapper.Classes
}

// Predict runs one image through the wrapped model and returns a
// probability vector of exactly len(Classes()) entries.
func (c *Classifier) Predict(img image.Image) ([]float32, error) {
	input := preprocess(img, c.wrapper)

	out, err := c.runner.Run(input)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	if len(out) != len(c.wrapper.Classes) {
		return nil, &InferenceError{Got: len(out), Want: len(c.wrapper.Classes)}
	}
	return out, nil
}

func (c *Classifier) Close() error {
	return c.runner.Close()
}
