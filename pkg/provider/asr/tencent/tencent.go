// Package tencent provides a recognition provider backed by the Tencent
// Cloud realtime ASR WebSocket API (asr.cloud.tencent.com).
//
// The realtime API is a streaming interface; recognition of a finished
// capture is done by replaying the PCM over the socket in fixed-size frames
// and collecting the stable slices the server emits, then closing with an
// end message. Requests are authenticated by an HMAC-SHA1 signature over
// the sorted query string, keyed with the account's secret key.
package tencent

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
)

const (
	defaultHost = "asr.cloud.tencent.com"

	// frameBytes is 40 ms of 16 kHz mono 16-bit PCM, the frame size the
	// realtime endpoint recommends.
	frameBytes = 1280

	// voiceFormatPCM identifies raw PCM in the wire protocol.
	voiceFormatPCM = 1

	// signatureTTL bounds how long a signed URL stays valid.
	signatureTTL = 5 * time.Minute
)

// sliceTypeStable marks a result slice the server will not revise.
const sliceTypeStable = 2

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHost overrides the API host. Intended for tests; the value may
// include a port and a ws:// scheme prefix.
func WithHost(host string) Option {
	return func(p *Provider) { p.host = host }
}

// Provider implements asr.Provider against the Tencent realtime ASR API.
type Provider struct {
	appID     string
	secretID  string
	secretKey string
	host      string
}

// New creates a Provider from the Tencent Cloud account credentials.
func New(appID, secretID, secretKey string, opts ...Option) (*Provider, error) {
	if appID == "" || secretID == "" || secretKey == "" {
		return nil, errors.New("tencent: appID, secretID and secretKey must not be empty")
	}
	p := &Provider{
		appID:     appID,
		secretID:  secretID,
		secretKey: secretKey,
		host:      defaultHost,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return "remote_tencent" }

// Recognize replays the capture over a realtime session and returns the
// concatenation of the stable slices. Tencent does not translate;
// TranslatedText is always empty.
func (p *Provider) Recognize(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	pcm, format, err := audio.ReadWAVFile(req.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("tencent: %w: %v", asr.ErrBadAudio, err)
	}
	if format.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	pcm = audio.ResampleMono16(pcm, format.SampleRate, audio.RecognitionRate)

	wsURL := p.signedURL(engineModel(req.Language))
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("tencent: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	// Handshake: the server acknowledges the signed URL before any audio.
	var hello serverMessage
	if err := readMessage(ctx, conn, &hello); err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("tencent: handshake: %w", err)
	}
	if hello.Code != 0 {
		return nil, fmt.Errorf("tencent: handshake refused: %s (code %d)", hello.Message, hello.Code)
	}

	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, fmt.Errorf("tencent: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"end"}`)); err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("tencent: send end: %w", err)
	}

	// Collect stable slices until the final frame. Slices are keyed by
	// index because the server may interleave revisions of the same slice.
	slices := map[int]string{}
	for {
		var msg serverMessage
		if err := readMessage(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, fmt.Errorf("tencent: read result: %w", err)
		}
		if msg.Code != 0 {
			return nil, fmt.Errorf("tencent: recognition failed: %s (code %d)", msg.Message, msg.Code)
		}
		if msg.Result != nil && msg.Result.SliceType == sliceTypeStable {
			slices[msg.Result.Index] = strings.TrimSpace(msg.Result.VoiceTextStr)
		}
		if msg.Final == 1 {
			break
		}
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	indexes := make([]int, 0, len(slices))
	for i := range slices {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	parts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		if slices[i] != "" {
			parts = append(parts, slices[i])
		}
	}
	return &asr.Result{RecognizedText: strings.Join(parts, " ")}, nil
}

type serverMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	VoiceID string `json:"voice_id"`
	Final   int    `json:"final"`
	Result  *struct {
		SliceType    int    `json:"slice_type"`
		Index        int    `json:"index"`
		VoiceTextStr string `json:"voice_text_str"`
	} `json:"result"`
}

func readMessage(ctx context.Context, conn *websocket.Conn, out *serverMessage) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// signedURL builds the wss URL for one session. The signature is
// HMAC-SHA1 over "host/path?sorted-query" with the secret key, base64 and
// then URL-encoded as the trailing query parameter.
func (p *Provider) signedURL(engine string) string {
	host, scheme := p.host, "wss"
	if strings.HasPrefix(host, "ws://") {
		host, scheme = strings.TrimPrefix(host, "ws://"), "ws"
	}
	path := "/asr/v2/" + p.appID

	now := time.Now()
	params := map[string]string{
		"secretid":          p.secretID,
		"engine_model_type": engine,
		"voice_id":          uuid.NewString(),
		"voice_format":      strconv.Itoa(voiceFormatPCM),
		"timestamp":         strconv.FormatInt(now.Unix(), 10),
		"expired":           strconv.FormatInt(now.Add(signatureTTL).Unix(), 10),
		"nonce":             strconv.Itoa(rand.Intn(1 << 30)),
		"needvad":           "1",
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// The signing string uses raw values; the dialed URL escapes them.
	var raw, query strings.Builder
	for i, k := range keys {
		if i > 0 {
			raw.WriteByte('&')
			query.WriteByte('&')
		}
		fmt.Fprintf(&raw, "%s=%s", k, params[k])
		fmt.Fprintf(&query, "%s=%s", k, url.QueryEscape(params[k]))
	}

	mac := hmac.New(sha1.New, []byte(p.secretKey))
	mac.Write([]byte(host + path + "?" + raw.String()))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s://%s%s?%s&signature=%s", scheme, host, path, query.String(), url.QueryEscape(sig))
}

// engineModel maps a language code to a 16 kHz engine model.
func engineModel(lang string) string {
	switch strings.ToLower(lang) {
	case "zh", "zh-cn", "cmn":
		return "16k_zh"
	default:
		return "16k_en"
	}
}
