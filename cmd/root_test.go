package cmd

import (
	"os"
	"testing"
)

func TestCheckStdinPipe(t *testing.T) {
	origStdin := os.Stdin
	defer func() {
		os.Stdin = origStdin
	}()

	t.Run("WithPipedData", func(t *testing.T) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("Failed to create pipe: %v", err)
		}
		os.Stdin = r

		go func() {
			defer w.Close()
			w.Write([]byte("test piped input\n"))
		}()

		data, hasPiped := checkStdinPipe()
		if !hasPiped {
			t.Error("Expected hasPiped to be true, got false")
		}
		if data != "test piped input" {
			t.Errorf("Expected data to be %q, got %q", "test piped input", data)
		}
	})

	t.Run("WithEmptyPipe", func(t *testing.T) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("Failed to create pipe: %v", err)
		}
		os.Stdin = r
		w.Close()

		data, hasPiped := checkStdinPipe()
		if hasPiped {
			t.Error("Expected hasPiped to be false, got true")
		}
		if data != "" {
			t.Errorf("Expected data to be empty, got %q", data)
		}
	})
}
