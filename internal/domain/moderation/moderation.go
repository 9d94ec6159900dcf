package moderation

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultThreshold is the probability above which an unsafe class rejects an image.
const DefaultThreshold = 0.25

// Classifier output class names.
const (
	ClassDrawing = "Drawing"
	ClassHentai  = "Hentai"
	ClassNeutral = "Neutral"
	ClassPorn    = "Porn"
	ClassSexy    = "Sexy"
)

// UnsafeClasses lists the classes that can reject an image.
func UnsafeClasses() []string {
	return []string{ClassPorn, ClassHentai}
}

// Prediction is one class probability reported by a classifier.
type Prediction struct {
	ClassName   string  `json:"className"`
	Probability float64 `json:"probability"`
}

// Verdict is the moderation outcome for one image.
type Verdict struct {
	IsSafe      bool         `json:"isSafe"`
	Predictions []Prediction `json:"predictions"`
}

// Evaluate marks the image unsafe when any unsafe class scores strictly above
// threshold.
func Evaluate(preds []Prediction, threshold float64) Verdict {
	if preds == nil {
		preds = []Prediction{}
	}
	v := Verdict{IsSafe: true, Predictions: preds}
	for _, p := range preds {
		for _, c := range UnsafeClasses() {
			if p.ClassName == c && p.Probability > threshold {
				v.IsSafe = false
			}
		}
	}
	return v
}

// Image is a decoded inline image.
type Image struct {
	MIMEType string
	Data     []byte
}

// ParseDataURL decodes "data:<mime>;base64,<payload>". A bare base64 payload
// is accepted as well.
func ParseDataURL(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, fmt.Errorf("image is required")
	}

	mime := ""
	payload := s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return Image{}, fmt.Errorf("malformed data URL")
		}
		var isBase64 bool
		header, isBase64 = strings.CutSuffix(header, ";base64")
		if !isBase64 {
			return Image{}, fmt.Errorf("data URL must be base64 encoded")
		}
		if !strings.HasPrefix(header, "image/") {
			return Image{}, fmt.Errorf("unsupported media type %q", header)
		}
		mime = header
		payload = data
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image is empty")
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// DataURL renders the image back as a base64 data URL.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}
