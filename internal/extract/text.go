package extract

import (
	"context"
	"os"
)

func extractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func init() {
	Register(TypeText, extractText)
}
