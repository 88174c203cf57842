package registry

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

func encodeBest(w io.Writer, b Best) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func decodeBest(data []byte) (Best, error) {
	var b Best
	if err := json.Unmarshal(data, &b); err != nil {
		return Best{}, fmt.Errorf("decode best metrics: %w", err)
	}
	if b.Accuracy < 0 || b.Accuracy > 1 {
		return Best{}, fmt.Errorf("best metrics accuracy %v outside [0, 1]", b.Accuracy)
	}
	return b, nil
}
