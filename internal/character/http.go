package character

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/easeaico/rolechat/internal/types"
)

// DefaultAPIURL is the character service used when none is configured.
const DefaultAPIURL = "http://localhost:3000/api"

// HTTPDirectory reads characters from the frontend character API. Without an
// API key it falls back to the public character routes.
type HTTPDirectory struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOptions configures an HTTPDirectory.
type HTTPOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// NewHTTPDirectory returns an HTTPDirectory.
func NewHTTPDirectory(opts HTTPOptions) *HTTPDirectory {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDirectory{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		client:  client,
		logger:  logger,
	}
}

func (d *HTTPDirectory) GetByID(ctx context.Context, id string) (*types.Character, error) {
	var endpoint string
	if d.apiKey == "" {
		endpoint = d.baseURL + "/public-characters/" + url.PathEscape(id)
	} else {
		q := url.Values{"api_key": {d.apiKey}}
		endpoint = d.baseURL + "/characters/" + url.PathEscape(id) + "?" + q.Encode()
	}

	var raw map[string]any
	status, err := d.getJSON(ctx, endpoint, &raw)
	if status == http.StatusNotFound {
		return nil, types.ErrCharacterNotFound
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.ErrCharacterNotFound
	}

	c := fromFields(raw)
	if c.ID == "" {
		c.ID = id
	}
	applyDefaults(c, true)
	Normalize(c)
	d.logger.Debug("character loaded", "character_id", c.ID, "name", c.Name)
	return c, nil
}

func (d *HTTPDirectory) List(ctx context.Context) ([]types.Character, error) {
	var endpoint string
	if d.apiKey == "" {
		d.logger.Warn("no backend api key configured, using public character api")
		endpoint = d.baseURL + "/public-characters"
	} else {
		q := url.Values{"includeAll": {"true"}, "api_key": {d.apiKey}}
		endpoint = d.baseURL + "/characters?" + q.Encode()
	}

	var raws []map[string]any
	if _, err := d.getJSON(ctx, endpoint, &raws); err != nil {
		return nil, err
	}

	out := make([]types.Character, 0, len(raws))
	for _, raw := range raws {
		c := fromFields(raw)
		if c.ID == "" {
			continue
		}
		applyDefaults(c, false)
		Normalize(c)
		out = append(out, *c)
	}
	return out, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, endpoint string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build character request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call character api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read character response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("character api returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode character response: %w", err)
	}
	return resp.StatusCode, nil
}

// fromFields builds a Character from a loosely typed JSON object. A JSON
// object in extraInfo, encoded or inline, overrides top-level attributes.
func fromFields(raw map[string]any) *types.Character {
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[k] = v
	}
	if extra, ok := raw["extraInfo"]; ok {
		for k, v := range decodeExtraInfo(extra) {
			fields[k] = v
		}
	}

	c := &types.Character{}
	targets := map[string]*string{
		"id":             &c.ID,
		"name":           &c.Name,
		"gender":         &c.Gender,
		"age":            &c.Age,
		"job":            &c.Job,
		"personality":    &c.Personality,
		"speakingStyle":  &c.SpeakingStyle,
		"likes":          &c.Likes,
		"dislikes":       &c.Dislikes,
		"quote":          &c.Quote,
		"description":    &c.Description,
		"basicInfo":      &c.BasicInfo,
		"firstChatScene": &c.FirstChatScene,
		"firstChatLine":  &c.FirstChatLine,
		"avatar":         &c.Avatar,
		"system":         &c.SystemPrompt,
	}
	for key, target := range targets {
		if v, ok := fields[key]; ok {
			*target = stringify(v)
		}
	}
	return c
}

func decodeExtraInfo(v any) map[string]any {
	switch extra := v.(type) {
	case map[string]any:
		return extra
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(extra), &decoded); err != nil {
			return nil
		}
		return decoded
	default:
		return nil
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}

// applyDefaults fills missing attributes. Single lookups fill every prompt
// attribute; listings only the summary ones.
func applyDefaults(c *types.Character, detailed bool) {
	setDefault(&c.Name, "角色 "+c.ID)
	setDefault(&c.Description, "无描述")
	setDefault(&c.Gender, "未指定")
	setDefault(&c.Job, "未知")
	if !detailed {
		return
	}
	for _, field := range []*string{
		&c.Age,
		&c.Personality,
		&c.SpeakingStyle,
		&c.BasicInfo,
		&c.Likes,
		&c.Dislikes,
		&c.Quote,
		&c.FirstChatScene,
		&c.FirstChatLine,
	} {
		setDefault(field, "未设定")
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
