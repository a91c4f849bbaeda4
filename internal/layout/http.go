package layout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"review-backend/internal/shared/util"
)

// Client talks to the visual layout-parsing backend over HTTP.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewClient constructs a layout-parsing client.
func NewClient(baseURL, apiToken string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("PARSER_BASE_URL is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type parseRequest struct {
	File                     string `json:"file"`
	FileType                 int    `json:"fileType"`
	UseDocOrientationDetect  bool   `json:"useDocOrientationClassify"`
	UseDocUnwarping          bool   `json:"useDocUnwarping"`
	UseTextlineOrientation   bool   `json:"useTextlineOrientation"`
}

type parseResponse struct {
	Result struct {
		LayoutParsingResults []struct {
			PrunedResult struct {
				ParsingResList []struct {
					BlockBBox    []float64 `json:"block_bbox"`
					BlockContent string    `json:"block_content"`
					BlockLabel   string    `json:"block_label"`
				} `json:"parsing_res_list"`
			} `json:"prunedResult"`
		} `json:"layoutParsingResults"`
	} `json:"result"`
}

// Parse submits the raw document and converts the backend's block list
// into a ParsedLayout. Connection failures map to ErrUnavailable; non-2xx
// statuses and undecodable payloads map to ErrMalformed.
func (c *Client) Parse(ctx context.Context, data []byte, fileName string, mimeType string) (ParsedLayout, error) {
	_ = mimeType

	body := parseRequest{
		File:     base64.StdEncoding.EncodeToString(data),
		FileType: fileTypeFor(fileName),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ParsedLayout{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/layout-parsing", bytes.NewReader(payload))
	if err != nil {
		return ParsedLayout{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "token "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ParsedLayout{}, ctx.Err()
		}
		return ParsedLayout{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ParsedLayout{}, fmt.Errorf("%w: read body: %v", ErrMalformed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return ParsedLayout{}, fmt.Errorf("%w: http status %d", ErrMalformed, resp.StatusCode)
	}

	var parsed parseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ParsedLayout{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	if len(parsed.Result.LayoutParsingResults) == 0 {
		return ParsedLayout{}, fmt.Errorf("%w: empty layoutParsingResults", ErrMalformed)
	}

	layout := ParsedLayout{Fingerprint: util.Fingerprint(data)}
	order := 0
	for page, pageResult := range parsed.Result.LayoutParsingResults {
		for _, blk := range pageResult.PrunedResult.ParsingResList {
			text := strings.TrimSpace(blk.BlockContent)
			if text == "" {
				continue
			}
			block := Block{
				Text:       text,
				Type:       blockTypeFor(blk.BlockLabel),
				OrderIndex: order,
			}
			if box, ok := boxFromBBox(page+1, blk.BlockBBox); ok {
				block.Box = box
			} else {
				block.NonVisual = true
			}
			layout.Blocks = append(layout.Blocks, block)
			order++
		}
	}
	if len(layout.Blocks) == 0 {
		return ParsedLayout{}, fmt.Errorf("%w: no text blocks", ErrMalformed)
	}
	return layout, nil
}

// Health probes the backend's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func fileTypeFor(fileName string) int {
	// The backend distinguishes PDF (0) from image input (1).
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png", ".jpg", ".jpeg", ".bmp":
		return 1
	default:
		return 0
	}
}

func blockTypeFor(label string) BlockType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "title", "paragraph_title", "doc_title", "figure_title", "table_title":
		return BlockHeading
	case "table", "table_cell":
		return BlockTableCell
	default:
		return BlockParagraph
	}
}

func boxFromBBox(page int, bbox []float64) (BoundingBox, bool) {
	if len(bbox) != 4 {
		return BoundingBox{}, false
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return BoundingBox{}, false
	}
	return BoundingBox{
		Page:   page,
		X:      bbox[0],
		Y:      bbox[1],
		Width:  w,
		Height: h,
	}, true
}

var _ Parser = (*Client)(nil)
