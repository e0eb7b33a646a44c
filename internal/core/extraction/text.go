package extraction

import (
	"context"
	"fmt"
	"os"
)

// TextExtractor returns the file content decoded as UTF-8.
type TextExtractor struct{}

func (TextExtractor) Extract(ctx context.Context, file UploadedFile) (string, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	return string(data), nil
}

// FallbackExtractor accepts any file without reading its content.
type FallbackExtractor struct{}

func (FallbackExtractor) Extract(ctx context.Context, file UploadedFile) (string, error) {
	return fmt.Sprintf("File %q uploaded successfully. Content type: %s", file.OriginalName, file.MIMEType), nil
}
