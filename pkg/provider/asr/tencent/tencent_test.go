package tencent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
	"github.com/lxm0851/shadowing/pkg/provider/asr/tencent"
)

func writeTestWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.wav")
	pcm := make([]byte, audio.CaptureRate/2)
	if err := audio.WriteWAVFile(path, pcm, audio.CaptureFormat); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	return path
}

// wsHost converts an httptest server URL to the ws:// host form the
// provider's WithHost option accepts.
func wsHost(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestRecognize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/asr/v2/app-1") {
			t.Errorf("path = %q, want /asr/v2/app-1 prefix", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("secretid") != "sid" {
			t.Errorf("secretid = %q, want sid", q.Get("secretid"))
		}
		if q.Get("engine_model_type") != "16k_en" {
			t.Errorf("engine_model_type = %q, want 16k_en", q.Get("engine_model_type"))
		}
		if q.Get("signature") == "" {
			t.Error("signature missing from query")
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		send := func(v any) {
			data, _ := json.Marshal(v)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				t.Errorf("server write: %v", err)
			}
		}
		send(map[string]any{"code": 0, "message": "success", "voice_id": "v1"})

		// Drain audio frames until the end message arrives.
		var audioBytes int
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				t.Errorf("server read: %v", err)
				return
			}
			if typ == websocket.MessageText {
				if strings.Contains(string(data), `"end"`) {
					break
				}
				continue
			}
			audioBytes += len(data)
		}
		if audioBytes == 0 {
			t.Error("no audio frames received before end")
		}

		send(map[string]any{
			"code": 0,
			"result": map[string]any{
				"slice_type": 2, "index": 0, "voice_text_str": "hello",
			},
		})
		send(map[string]any{
			"code": 0, "final": 1,
			"result": map[string]any{
				"slice_type": 2, "index": 1, "voice_text_str": "world",
			},
		})
	}))
	defer srv.Close()

	p, err := tencent.New("app-1", "sid", "skey", tencent.WithHost(wsHost(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Recognize(context.Background(), asr.Request{WAVPath: writeTestWAV(t), Language: "en"})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.RecognizedText != "hello world" {
		t.Errorf("RecognizedText = %q, want %q", res.RecognizedText, "hello world")
	}
}

func TestRecognize_HandshakeRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		data, _ := json.Marshal(map[string]any{"code": 4002, "message": "signature invalid"})
		_ = conn.Write(r.Context(), websocket.MessageText, data)
	}))
	defer srv.Close()

	p, err := tencent.New("app", "sid", "skey", tencent.WithHost(wsHost(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Recognize(context.Background(), asr.Request{WAVPath: writeTestWAV(t)}); err == nil {
		t.Fatal("expected handshake error, got nil")
	}
}

func TestRecognize_CancelledContextReturnsNil(t *testing.T) {
	t.Parallel()

	p, err := tencent.New("app", "sid", "skey")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Recognize(ctx, asr.Request{WAVPath: "whatever.wav"})
	if res != nil || err != nil {
		t.Fatalf("Recognize = (%v, %v), want (nil, nil) on cancelled context", res, err)
	}
}
