// render-digest converts a delivered digest HTML file to PDF for
// archiving or sharing outside the browser.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joelkehle/brief/internal/delivery"
)

func main() {
	inputPath := flag.String("input", "", "Path to a delivered digest HTML file")
	outputPath := flag.String("output", "", "Path to write the PDF (defaults to the input path with a .pdf extension)")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}

	htmlDoc, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	out := *outputPath
	if out == "" {
		out = strings.TrimSuffix(*inputPath, ".html") + ".pdf"
	}

	renderer := delivery.NewPDFRenderer()
	pdf, err := renderer.Render(context.Background(), string(htmlDoc))
	if err != nil {
		log.Fatalf("render PDF: %v", err)
	}

	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		log.Fatalf("write PDF: %v", err)
	}
	log.Printf("wrote %s (%d bytes)", out, len(pdf))
}
