package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// transcriptionPrompt is shared by the vision model providers. The heuristic extractor
// does the field work, so the models are only asked for a faithful transcription.
const transcriptionPrompt = `You are reading a photographed delivery note (albarán) or invoice.
Transcribe ALL text visible in the image exactly as printed, preserving the original line order.

Rules:
- Put each printed line on its own line
- Keep numbers, decimal commas, currency symbols and tax ids exactly as they appear
- Do not translate, summarize, correct or reformat anything
- Do not add commentary, headings or markdown code blocks
- If the image contains no readable text, return an empty response`

// cleanTranscript removes the code fences some models wrap their answers in
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

// pdfToImage renders the first page of a PDF as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Delivery notes are single page; the rest is ignored
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// imageToPNG re-encodes JPEG, GIF, PNG or HEIC/HEIF data as PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Phone cameras produce HEIC, which the standard image package can't read
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMimeType lowercases the content type and drops parameters. The input
// contract is JPEG, so that is assumed when nothing is given.
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// preparePNG converts an image to PNG for providers that only take PNG
func preparePNG(img Image) ([]byte, error) {
	mimeType := normalizeMimeType(img.ContentType)

	switch {
	case mimeType == "application/pdf":
		data, err := pdfToImage(img.Data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return data, nil
	case mimeType == "image/png" && !isHEICFormat(img.Data):
		return img.Data, nil
	default:
		data, err := imageToPNG(img.Data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return data, nil
	}
}

// preparePassthrough keeps formats the provider accepts natively and converts
// everything else to PNG. It returns the data and its MIME type.
func preparePassthrough(img Image, accepted ...string) ([]byte, string, error) {
	mimeType := normalizeMimeType(img.ContentType)
	if !isHEICFormat(img.Data) {
		for _, a := range accepted {
			if a == mimeType {
				return img.Data, mimeType, nil
			}
		}
	}

	data, err := preparePNG(img)
	if err != nil {
		return nil, "", err
	}
	return data, "image/png", nil
}
