package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortRunner feeds preprocessed tensors through an ONNX session. The
// session is required to expose exactly one named input and one named
// output; anything else fails at load, not silently at predict time.
type ortRunner struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newORTRunner(modelPath string, imageSize, numClasses int) (*ortRunner, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(imageSize), int64(imageSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numClasses)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &ortRunner{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (r *ortRunner) Run(input []float32) ([]float32, error) {
	// The session reuses its input and output tensors, so concurrent
	// requests serialize here. The model weights themselves are
	// read-only.
	r.mu.Lock()
	defer r.mu.Unlock()

	if got, want := len(input), len(r.inputTensor.GetData()); got != want {
		return nil, fmt.Errorf("input tensor has %d values, want %d", got, want)
	}
	copy(r.inputTensor.GetData(), input)

	if err := r.session.Run(); err != nil {
		return nil, err
	}

	out := make([]float32, len(r.outputTensor.GetData()))
	copy(out, r.outputTensor.GetData())
	return out, nil
}

func (r *ortRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inputTensor != nil {
		r.inputTensor.Destroy()
	}
	if r.outputTensor != nil {
		r.outputTensor.Destroy()
	}
	if r.session != nil {
		r.session.Destroy()
	}
	return ort.DestroyEnvironment()
}
