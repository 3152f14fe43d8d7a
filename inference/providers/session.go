package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Session represents a model session from the onnxruntime with its
// preallocated input and output tensors.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	backend ProviderBackend
}

// Input returns the input tensor's backing data. Writes are seen by Run.
func (s *Session) Input() []float32 {
	return s.input.GetData()
}

// Output returns the output tensor's backing data as left by the last Run.
func (s *Session) Output() []float32 {
	return s.output.GetData()
}

// Backend returns the backend the session was created for.
func (s *Session) Backend() ProviderBackend {
	return s.backend
}

// Run executes the model on the current input tensor.
func (s *Session) Run() error {
	if s.session == nil {
		return fmt.Errorf("session is closed")
	}
	if err := s.session.Run(); err != nil {
		return fmt.Errorf("error running ORT session: %w", err)
	}
	return nil
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: An error if the native session could not be destroyed.
func (s *Session) Close() error {
	var err error
	if s.session != nil {
		if derr := s.session.Destroy(); derr != nil {
			err = fmt.Errorf("error destroying ORT session: %w", derr)
		}
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return err
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The bound input name and shape.
	InputName  string
	InputShape []int64
	// The bound output name and shape.
	OutputName  string
	OutputShape []int64
	// Session settings; DefaultOptimizationConfig when nil.
	Optimization *OptimizationConfig
}

// NewSession creates a new ONNX Runtime session.
//
// Order of operations:
//  1. Tensor allocation: Prepares fixed-shape buffers for input/output data.
//  2. Session options: Threading, optimization level and the execution provider.
//  3. Session creation: Loads model and binds the tensors, creating the runnable inference engine.
//
// The environment must be initialized with Initialize first.
//
// Arguments:
//   - provider: The provider for the session.
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: Wrapped Session struct that holds the native session and tensors for inference.
//   - error: An error if the session creation fails.
func NewSession(provider ExecutionProvider, args NewSessionArgs) (*Session, error) {
	if args.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if args.InputName == "" || args.OutputName == "" {
		return nil, fmt.Errorf("input and output names are required")
	}
	if provider == nil {
		provider = NewCPUProvider(CPUOptions{})
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(args.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor %v: %w", args.InputShape, err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(args.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor %v: %w", args.OutputShape, err)
	}

	optimization := DefaultOptimizationConfig()
	if args.Optimization != nil {
		optimization = *args.Optimization
	}

	options, err := OptimizedSessionOptions(optimization, provider)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.InputName},
		[]string{args.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Session{
		session: session,
		input:   input,
		output:  output,
		backend: provider.Backend(),
	}, nil
}
