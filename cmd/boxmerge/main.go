// Command boxmerge merges raw detections offline, reading either a JSON array
// of boxes or a {width,height,detections} document.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	"receiptdetect/internal/service/boxmerge"
)

type frameInput struct {
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Detections []boxmerge.Detection `json:"detections"`
}

type mergeOutput struct {
	NumDetections int                  `json:"num_detections"`
	Iterations    int                  `json:"iterations"`
	Converged     bool                 `json:"converged"`
	Detections    []boxmerge.Detection `json:"detections"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("boxmerge: %v", err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("boxmerge", flag.ContinueOnError)
	input := fs.String("in", "-", "Detections JSON file, - for stdin")
	threshold := fs.Float64("threshold", boxmerge.DefaultContainmentThreshold, "Containment threshold in (0, 1]")
	iterations := fs.Int("iterations", boxmerge.DefaultMaxIterations, "Maximum merge passes")
	width := fs.Int("width", 0, "Image width, overrides the input document")
	height := fs.Int("height", 0, "Image height, overrides the input document")
	pretty := fs.Bool("pretty", false, "Indent output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *threshold <= 0 || *threshold > 1 {
		return errors.Errorf("threshold must be in (0, 1], got %v", *threshold)
	}

	var data []byte
	var err error
	if *input == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(*input)
	}
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	frame, err := parseInput(data)
	if err != nil {
		return err
	}
	if *width > 0 {
		frame.Width = *width
	}
	if *height > 0 {
		frame.Height = *height
	}

	result := boxmerge.Merge(frame.Detections, frame.Width, frame.Height, boxmerge.Options{
		ContainmentThreshold: *threshold,
		MaxIterations:        *iterations,
	})
	if !result.Converged {
		fmt.Fprintf(os.Stderr, "warning: merge did not converge after %d iterations\n", result.Iterations)
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(mergeOutput{
		NumDetections: len(result.Detections),
		Iterations:    result.Iterations,
		Converged:     result.Converged,
		Detections:    result.Detections,
	})
}

func parseInput(data []byte) (*frameInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}

	frame := &frameInput{}
	if data[0] == '[' {
		if err := json.Unmarshal(data, &frame.Detections); err != nil {
			return nil, errors.Wrap(err, "decode detections")
		}
		return frame, nil
	}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	return frame, nil
}
