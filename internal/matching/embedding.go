package matching

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	apperrors "github.com/your-org/mpr/internal/errors"
)

// EmbeddingScorer compares images by cosine similarity of ArcFace embeddings.
// It adds no noise. The ONNX session is shared, so extraction is serialized.
// With a detector set, embeddings are taken from the most confident face.
type EmbeddingScorer struct {
	mu           sync.Mutex
	detector     *FaceDetector
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

// NewEmbeddingScorer loads the ArcFace ONNX model. The ONNX runtime
// environment must already be initialized. detector may be nil.
func NewEmbeddingScorer(modelPath string, detector *FaceDetector) (*EmbeddingScorer, error) {
	// ArcFace w600k_r50 expects 112x112 input
	inputW, inputH := 112, 112
	embDim := 512

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(embDim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &EmbeddingScorer{
		detector:     detector,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
	}, nil
}

func (e *EmbeddingScorer) Prepare(query []byte) (Comparator, error) {
	q, err := e.Embed(query)
	if err != nil {
		return nil, err
	}
	return ComparatorFunc(func(candidate []byte) (float64, error) {
		c, err := e.Embed(candidate)
		if err != nil {
			return 0, err
		}
		return Clamp(math.Max(0, dot(q, c)) * 100), nil
	}), nil
}

// Embed decodes an image and returns its L2-normalized embedding.
func (e *EmbeddingScorer) Embed(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, apperrors.NewInvalidInputError("image data is empty", nil)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewInvalidInputError("decode image", err)
	}
	if e.detector != nil {
		faces, err := e.detector.Detect(img)
		if err != nil {
			return nil, err
		}
		if len(faces) > 0 {
			if crop := cropFace(img, faces[0].Box); crop != nil {
				img = crop
			}
		}
	}
	input := toCHW(img, e.inputW, e.inputH, 127.5, 127.5)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, e.embDim)
	copy(embedding, e.outputTensor.GetData())
	normalize(embedding)
	return embedding, nil
}

func (e *EmbeddingScorer) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.detector != nil {
		e.detector.Close()
	}
}

// toCHW resizes img and lays it out as normalized CHW float32:
//
//	pixel = (pixel - mean) / std
func toCHW(img image.Image, w, h int, mean, std float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := dst.PixOffset(x, y)
			idx := y*w + x
			data[0*h*w+idx] = (float32(dst.Pix[off]) - mean) / std
			data[1*h*w+idx] = (float32(dst.Pix[off+1]) - mean) / std
			data[2*h*w+idx] = (float32(dst.Pix[off+2]) - mean) / std
		}
	}
	return data
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
