package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
	"github.com/lxm0851/shadowing/pkg/provider/asr/openai"
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

func TestNew_RejectsEmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestRecognize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("model"); got != "whisper-1" {
				t.Errorf("model = %q, want whisper-1", got)
			}
			if got := r.FormValue("language"); got != "en" {
				t.Errorf("language = %q, want en", got)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"text": " hello world "})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"role": "assistant", "content": "你好，世界"}},
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := openai.New("key", "", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Recognize(context.Background(), asr.Request{
		WAVPath:   writeTestWAV(t),
		Language:  "en",
		Translate: true,
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.RecognizedText != "hello world" {
		t.Errorf("RecognizedText = %q, want %q", res.RecognizedText, "hello world")
	}
	if res.TranslatedText != "你好，世界" {
		t.Errorf("TranslatedText = %q, want %q", res.TranslatedText, "你好，世界")
	}
}

func TestRecognize_TranslationFailureDegrades(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := openai.New("key", "", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Recognize(context.Background(), asr.Request{
		WAVPath:   writeTestWAV(t),
		Translate: true,
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.RecognizedText != "hello" || res.TranslatedText != "" {
		t.Errorf("result = %+v, want untranslated \"hello\"", res)
	}
}

func TestRecognize_CancelledContextReturnsNil(t *testing.T) {
	t.Parallel()

	p, err := openai.New("key", "")
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
