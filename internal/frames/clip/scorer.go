package clip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	tokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"vidnotes/internal/frames"
)

// Default tensor names of a CLIP export with separate towers.
const (
	DefaultImageInput  = "pixel_values"
	DefaultImageOutput = "image_embeds"
	DefaultTextOutput  = "text_embeds"
)

// DefaultTextInputs are the text tower inputs.
var DefaultTextInputs = []string{"input_ids", "attention_mask"}

// Config locates the model files.
type Config struct {
	ImageModel    string
	TextModel     string
	Tokenizer     string
	SharedLibrary string
	Threads       int
}

// embedder produces raw embeddings. The ONNX implementation is swapped for
// a fake in tests.
type embedder interface {
	embedImage(pixels []float32) ([]float32, error)
	embedTexts(texts []string) ([][]float32, error)
	close() error
}

// Scorer implements frames.Scorer.
type Scorer struct {
	model embedder

	mu        sync.Mutex
	cacheKey  string
	textCache [][]float32
}

var _ frames.Scorer = (*Scorer)(nil)

// New loads the tokenizer and both ONNX sessions.
func New(cfg Config) (*Scorer, error) {
	model, err := newONNXModel(cfg)
	if err != nil {
		return nil, err
	}
	return &Scorer{model: model}, nil
}

// ScoreFrame returns the concept with the highest probability for img.
func (s *Scorer) ScoreFrame(ctx context.Context, img image.Image, concepts []string) (frames.Score, error) {
	if len(concepts) == 0 {
		return frames.Score{}, errors.New("clip: no concepts")
	}
	if err := ctx.Err(); err != nil {
		return frames.Score{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	textEmbeds, err := s.conceptEmbeddings(concepts)
	if err != nil {
		return frames.Score{}, err
	}
	raw, err := s.model.embedImage(Preprocess(img))
	if err != nil {
		return frames.Score{}, fmt.Errorf("clip: embed image: %w", err)
	}
	probs := ConceptProbabilities(Normalize(raw), textEmbeds)
	best := ArgMax(probs)
	if best < 0 {
		return frames.Score{}, errors.New("clip: empty similarity")
	}
	return frames.Score{Concept: concepts[best], Confidence: probs[best]}, nil
}

// conceptEmbeddings returns cached normalized text embeddings for concepts,
// recomputing only when the concept set changes. Callers hold s.mu.
func (s *Scorer) conceptEmbeddings(concepts []string) ([][]float32, error) {
	key := strings.Join(concepts, "\x00")
	if s.textCache != nil && key == s.cacheKey {
		return s.textCache, nil
	}
	raw, err := s.model.embedTexts(concepts)
	if err != nil {
		return nil, fmt.Errorf("clip: embed concepts: %w", err)
	}
	if len(raw) != len(concepts) {
		return nil, fmt.Errorf("clip: got %d concept embeddings for %d concepts", len(raw), len(concepts))
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		out[i] = Normalize(v)
	}
	s.cacheKey = key
	s.textCache = out
	return out, nil
}

// Close releases the ONNX sessions.
func (s *Scorer) Close() error {
	if s == nil || s.model == nil {
		return nil
	}
	return s.model.close()
}

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(sharedLibrary string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

type onnxModel struct {
	tok    *tokenizer.Tokenizer
	vision *ort.DynamicAdvancedSession
	text   *ort.DynamicAdvancedSession
}

func newONNXModel(cfg Config) (*onnxModel, error) {
	if cfg.ImageModel == "" || cfg.TextModel == "" || cfg.Tokenizer == "" {
		return nil, errors.New("clip: image_model, text_model, and tokenizer paths are required")
	}
	tok, err := pretrained.FromFile(cfg.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("clip: load tokenizer: %w", err)
	}
	if err := acquireEnvironment(cfg.SharedLibrary); err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		_ = releaseEnvironment()
		return nil, fmt.Errorf("clip: session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		_ = releaseEnvironment()
		return nil, fmt.Errorf("clip: graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
		_ = releaseEnvironment()
		return nil, fmt.Errorf("clip: thread count: %w", err)
	}

	vision, err := ort.NewDynamicAdvancedSession(cfg.ImageModel, []string{DefaultImageInput}, []string{DefaultImageOutput}, opts)
	if err != nil {
		_ = releaseEnvironment()
		return nil, fmt.Errorf("clip: load image model: %w", err)
	}
	text, err := ort.NewDynamicAdvancedSession(cfg.TextModel, DefaultTextInputs, []string{DefaultTextOutput}, opts)
	if err != nil {
		_ = vision.Destroy()
		_ = releaseEnvironment()
		return nil, fmt.Errorf("clip: load text model: %w", err)
	}
	return &onnxModel{tok: tok, vision: vision, text: text}, nil
}

func (m *onnxModel) embedImage(pixels []float32) ([]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(1, 3, InputSize, InputSize), pixels)
	if err != nil {
		return nil, fmt.Errorf("pixel tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, 1)
	if err := m.vision.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("vision inference: %w", err)
	}
	defer outputs[0].Destroy()
	rows, err := tensorRows(outputs[0])
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (m *onnxModel) embedTexts(texts []string) ([][]float32, error) {
	inputs := make([]tokenizer.EncodeInput, len(texts))
	for i, t := range texts {
		inputs[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(t))
	}
	encodings, err := m.tok.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize concepts: %w", err)
	}
	maxLen := 0
	for _, enc := range encodings {
		maxLen = max(maxLen, len(enc.GetIds()))
	}
	batch := len(encodings)
	ids := make([]int64, batch*maxLen)
	mask := make([]int64, batch*maxLen)
	for i, enc := range encodings {
		tid := enc.GetIds()
		am := enc.GetAttentionMask()
		offset := i * maxLen
		for j := range tid {
			ids[offset+j] = int64(tid[j])
			mask[offset+j] = int64(am[j])
		}
	}

	idsTensor, err := ort.NewTensor(ort.NewShape(int64(batch), int64(maxLen)), ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(ort.NewShape(int64(batch), int64(maxLen)), mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := make([]ort.Value, 1)
	if err := m.text.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("text inference: %w", err)
	}
	defer outputs[0].Destroy()
	return tensorRows(outputs[0])
}

// tensorRows copies a [batch, dim] float32 output out of ONNX-owned memory.
func tensorRows(value ort.Value) ([][]float32, error) {
	tensor, ok := value.(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("output tensor is not float32")
	}
	shape := tensor.GetShape()
	if len(shape) != 2 || shape[0] < 1 {
		return nil, fmt.Errorf("unexpected embedding shape %v", shape)
	}
	data := tensor.GetData()
	rows := make([][]float32, shape[0])
	for i := int64(0); i < shape[0]; i++ {
		row := make([]float32, shape[1])
		copy(row, data[i*shape[1]:(i+1)*shape[1]])
		rows[i] = row
	}
	return rows, nil
}

func (m *onnxModel) close() error {
	var errs []error
	if m.vision != nil {
		errs = append(errs, m.vision.Destroy())
	}
	if m.text != nil {
		errs = append(errs, m.text.Destroy())
	}
	errs = append(errs, releaseEnvironment())
	return errors.Join(errs...)
}
