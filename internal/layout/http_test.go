package layout

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sampleBackendResponse() map[string]any {
	block := func(content, label string, bbox []float64) map[string]any {
		return map[string]any{
			"block_content": content,
			"block_label":   label,
			"block_bbox":    bbox,
		}
	}
	return map[string]any{
		"result": map[string]any{
			"layoutParsingResults": []any{
				map[string]any{
					"prunedResult": map[string]any{
						"parsing_res_list": []any{
							block("Master Services Agreement", "doc_title", []float64{50, 40, 550, 80}),
							block("1. Payment Terms", "paragraph_title", []float64{50, 120, 300, 150}),
							block("Payment is due within 90 days.", "text", []float64{50, 160, 550, 200}),
							block("", "text", []float64{0, 0, 10, 10}),
							block("Cell content", "table", []float64{10, 10, 5, 5}),
						},
					},
				},
			},
		},
	}
}

func TestClientParseConvertsBlocks(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		gotBody, _ = base64.StdEncoding.DecodeString(req["file"].(string))
		json.NewEncoder(w).Encode(sampleBackendResponse())
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("%PDF-1.4 fake")
	pl, err := client.Parse(context.Background(), data, "contract.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if gotAuth != "token secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if string(gotBody) != string(data) {
		t.Fatal("payload was not base64 of the raw document")
	}

	// Empty block dropped; four blocks remain in reading order.
	if len(pl.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(pl.Blocks))
	}
	for i, blk := range pl.Blocks {
		if blk.OrderIndex != i {
			t.Fatalf("block %d has order index %d", i, blk.OrderIndex)
		}
	}
	if pl.Blocks[0].Type != BlockHeading || pl.Blocks[1].Type != BlockHeading {
		t.Fatalf("title types = %s, %s", pl.Blocks[0].Type, pl.Blocks[1].Type)
	}
	if pl.Blocks[2].Type != BlockParagraph {
		t.Fatalf("text type = %s", pl.Blocks[2].Type)
	}
	if pl.Blocks[2].Box.Width != 500 || pl.Blocks[2].Box.Height != 40 {
		t.Fatalf("box = %+v", pl.Blocks[2].Box)
	}
	// Degenerate bbox yields a non-visual table cell.
	if pl.Blocks[3].Type != BlockTableCell || !pl.Blocks[3].NonVisual {
		t.Fatalf("table block = %+v", pl.Blocks[3])
	}
	if pl.Fingerprint == "" {
		t.Fatal("fingerprint must be set from raw bytes")
	}
}

func TestClientParseNon200IsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "", time.Second)
	_, err := client.Parse(context.Background(), []byte("x"), "contract.pdf", "application/pdf")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestClientParseUndecodableIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "", time.Second)
	_, err := client.Parse(context.Background(), []byte("x"), "contract.pdf", "application/pdf")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestClientParseConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client, _ := NewClient(srv.URL, "", time.Second)
	_, err := client.Parse(context.Background(), []byte("x"), "contract.pdf", "application/pdf")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	if err := client.Health(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("health err = %v, want ErrUnavailable", err)
	}
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "", time.Second)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
