// Package baidu provides a recognition provider backed by the Baidu
// short-speech REST API (vop.baidu.com).
//
// The API takes one utterance of at most 60 s as base64-encoded 16 kHz mono
// PCM inside a JSON body, authenticated with an OAuth access token minted
// from the API key / secret key pair. Tokens live for 30 days; the provider
// caches one and refreshes it shortly before expiry.
package baidu

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
)

const (
	defaultRecognizeURL = "https://vop.baidu.com/server_api"
	defaultTokenURL     = "https://aip.baidubce.com/oauth/2.0/token"

	// tokenSlack refreshes the cached token this long before it expires.
	tokenSlack = time.Hour

	// Recognition models ("dev_pid" in the wire format).
	devPIDEnglish  = 1737
	devPIDMandarin = 1537
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithRecognizeURL overrides the recognition endpoint. Intended for tests.
func WithRecognizeURL(u string) Option {
	return func(p *Provider) { p.recognizeURL = u }
}

// WithTokenURL overrides the OAuth token endpoint. Intended for tests.
func WithTokenURL(u string) Option {
	return func(p *Provider) { p.tokenURL = u }
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements asr.Provider against the Baidu short-speech API.
type Provider struct {
	appID     string
	apiKey    string
	secretKey string
	cuid      string

	recognizeURL string
	tokenURL     string
	httpClient   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a Provider from the application credentials issued by the
// Baidu AI console. All three values must be non-empty.
func New(appID, apiKey, secretKey string, opts ...Option) (*Provider, error) {
	if appID == "" || apiKey == "" || secretKey == "" {
		return nil, errors.New("baidu: appID, apiKey and secretKey must not be empty")
	}
	p := &Provider{
		appID:        appID,
		apiKey:       apiKey,
		secretKey:    secretKey,
		cuid:         uuid.NewString(),
		recognizeURL: defaultRecognizeURL,
		tokenURL:     defaultTokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return "remote_baidu" }

// Recognize resamples the capture to 16 kHz mono and submits it as one
// short-speech request. Baidu does not translate; TranslatedText is always
// empty.
func (p *Provider) Recognize(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	pcm, format, err := audio.ReadWAVFile(req.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("baidu: %w: %v", asr.ErrBadAudio, err)
	}
	if format.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	pcm = audio.ResampleMono16(pcm, format.SampleRate, audio.RecognitionRate)

	token, err := p.accessToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"format":  "pcm",
		"rate":    audio.RecognitionRate,
		"channel": 1,
		"cuid":    p.cuid,
		"token":   token,
		"dev_pid": devPID(req.Language),
		"speech":  base64.StdEncoding.EncodeToString(pcm),
		"len":     len(pcm),
	})
	if err != nil {
		return nil, fmt.Errorf("baidu: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.recognizeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("baidu: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("baidu: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("baidu: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("baidu: read response body: %w", err)
	}

	var result struct {
		ErrNo  int      `json:"err_no"`
		ErrMsg string   `json:"err_msg"`
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("baidu: parse JSON response: %w", err)
	}
	if result.ErrNo != 0 {
		return nil, fmt.Errorf("baidu: recognition failed: %s (err_no %d)", result.ErrMsg, result.ErrNo)
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	text := ""
	if len(result.Result) > 0 {
		text = strings.TrimSpace(result.Result[0])
	}
	return &asr.Result{RecognizedText: text}, nil
}

// accessToken returns the cached OAuth token, minting a fresh one when the
// cache is empty or close to expiry.
func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Until(p.tokenExpiry) > tokenSlack {
		return p.token, nil
	}

	q := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.apiKey},
		"client_secret": {p.secretKey},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("baidu: create token request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("baidu: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("baidu: token endpoint returned HTTP %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("baidu: parse token response: %w", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", fmt.Errorf("baidu: token refused: %s %s", tok.Error, tok.ErrorDesc)
	}

	p.token = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return p.token, nil
}

// devPID maps a language code to Baidu's recognition model identifier.
func devPID(lang string) int {
	switch strings.ToLower(lang) {
	case "zh", "zh-cn", "cmn":
		return devPIDMandarin
	default:
		return devPIDEnglish
	}
}
