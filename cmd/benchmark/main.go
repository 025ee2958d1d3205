package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/base"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vies"
)

// samples mixes valid numbers, checksum failures and unknown prefixes.
var samples = []string{
	"NL004495445B01",
	"NL123456780",
	"BE0123456749",
	"DK13585628",
	"FI01120389",
	"BE0123456748",
	"NO974760673MVA",
	"SE556036079301",
	"DE123456789",
	"ZZ123",
}

const iterations = 100000

// measureLocalValidation times sequential validation without a registry check
func measureLocalValidation() {
	v, err := vat.NewValidator(vat.Config{})
	if err != nil {
		fmt.Printf("Validator error: %v\n", err)
		return
	}
	ctx := context.Background()

	fmt.Println("=== Local Validation Throughput ===")
	fmt.Println()

	valid := 0
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := v.Validate(ctx, samples[i%len(samples)]); err == nil {
			valid++
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("   Validations:  %d (%d valid)\n", iterations, valid)
	fmt.Printf("   Total time:   %v\n", elapsed)
	fmt.Printf("   Per call:     %v\n", elapsed/iterations)
	fmt.Printf("   Throughput:   %.0f/s\n", float64(iterations)/elapsed.Seconds())
	fmt.Println()
}

// measureParallelValidation shows that one Validator scales across goroutines
func measureParallelValidation() {
	v, err := vat.NewValidator(vat.Config{EUOnly: true})
	if err != nil {
		fmt.Printf("Validator error: %v\n", err)
		return
	}

	fmt.Println("=== Parallel Validation (shared validator) ===")
	fmt.Println()

	const workers = 8
	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < iterations; i += workers {
				_, _ = v.Validate(ctx, samples[i%len(samples)])
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	fmt.Printf("   Workers:      %d\n", workers)
	fmt.Printf("   Total time:   %v\n", elapsed)
	fmt.Printf("   Throughput:   %.0f/s\n", float64(iterations)/elapsed.Seconds())
	fmt.Println()
}

// measureCoalescing sends identical concurrent lookups to a slow fake VIES
// and counts how many reach it
func measureCoalescing() {
	var upstream atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		upstream.Add(1)
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, `<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/"><env:Body>`+
			`<checkVatResponse><countryCode>NL</countryCode><vatNumber>004495445B01</vatNumber>`+
			`<requestDate>2026-10-17</requestDate><valid>true</valid></checkVatResponse></env:Body></env:Envelope>`)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := vies.NewClient(srv.URL, base.WithLogger(logger))
	ctx := context.Background()

	fmt.Println("=== VIES Request Coalescing ===")
	fmt.Println()

	const callers = 20
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.Confirm(ctx, "NL", "004495445B01")
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("   Callers:           %d\n", callers)
	fmt.Printf("   Upstream requests: %d\n", upstream.Load())
	fmt.Printf("   Total time:        %v\n", elapsed)
	fmt.Println()
}

func main() {
	fmt.Println("VAT Registry Performance Benchmark")
	fmt.Println("==================================")
	fmt.Println()

	measureLocalValidation()
	measureParallelValidation()
	measureCoalescing()

	fmt.Println("Benchmark complete")
}
