package extraction

import (
	"context"
	"fmt"
	"os"

	"code.sajari.com/docconv"
)

// WordExtractor returns raw paragraph text without styling. OOXML documents
// are parsed in-process; legacy binary .doc files go through docconv's
// antiword bridge and fail when it cannot read them.
type WordExtractor struct{}

func (WordExtractor) Extract(ctx context.Context, file UploadedFile) (string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var text string
	if NormalizeMIME(file.MIMEType) == mimeDoc {
		text, _, err = docconv.ConvertDoc(f)
	} else {
		text, _, err = docconv.ConvertDocx(f)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}
