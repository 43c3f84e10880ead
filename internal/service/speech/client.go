package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/speech"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

const (
	// DefaultTimeout bounds TTS, transcription and lookup calls.
	DefaultTimeout = 30 * time.Second
	// DefaultAssessmentTimeout bounds pronunciation assessment.
	DefaultAssessmentTimeout = 30 * time.Second
)

var ErrEmptyText = errors.New("speech: text is empty")

// Client AI 语音后端客户端：TTS、Whisper 识别、发音评测与词典
type Client struct {
	baseURL           string
	http              *http.Client
	timeout           time.Duration
	assessmentTimeout time.Duration
	logger            *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the deadline for every call except pronunciation assessment.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAssessmentTimeout sets the pronunciation assessment deadline.
func WithAssessmentTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.assessmentTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient 创建语音后端客户端
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		http:              utils.NewHTTPClient(),
		timeout:           DefaultTimeout,
		assessmentTimeout: DefaultAssessmentTimeout,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize 文字转语音，返回解码后的音频字节
func (c *Client) Synthesize(ctx context.Context, req speech.TTSRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	form := url.Values{"text": []string{req.Text}}
	if req.Speaker != "" {
		form.Set("speaker", req.Speaker)
	}

	var resp speech.TTSResponse
	err := c.do(ctx, c.timeout, http.MethodPost, "/tts/", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	return resp.Decode()
}

// Transcribe 上传录音并返回识别文本（可能为空字符串）
func (c *Client) Transcribe(ctx context.Context, req speech.TranscribeRequest) (string, error) {
	filename := req.Filename
	if filename == "" {
		filename = "recording.m4a"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("whisper: write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("whisper: close form: %w", err)
	}

	var resp speech.TranscriptionResponse
	if err := c.do(ctx, c.timeout, http.MethodPost, "/whisper/", body, writer.FormDataContentType(), &resp); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return resp.Text(), nil
}

// AssessPronunciation 发音评测。响应可能被二次 JSON 编码，这里统一解包。
func (c *Client) AssessPronunciation(ctx context.Context, title string, audio []byte) (*speech.Assessment, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyText
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("title", title); err != nil {
		return nil, fmt.Errorf("assess: write title: %w", err)
	}
	encoded := "data:audio/m4a;base64," + base64.StdEncoding.EncodeToString(audio)
	if err := writer.WriteField("base64Audio", encoded); err != nil {
		return nil, fmt.Errorf("assess: write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("assess: close form: %w", err)
	}

	var raw json.RawMessage
	if err := c.do(ctx, c.assessmentTimeout, http.MethodPost, "/assess_pronunciation/", body, writer.FormDataContentType(), &raw); err != nil {
		return nil, fmt.Errorf("assess: %w", err)
	}

	var result speech.Assessment
	if err := UnmarshalLenient(raw, &result); err != nil {
		return nil, fmt.Errorf("assess: %w", err)
	}
	return &result, nil
}

// Phonetic 查询一句话的音标
func (c *Client) Phonetic(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	form := url.Values{"text": []string{text}}
	var resp speech.PhoneticResponse
	if err := c.do(ctx, c.timeout, http.MethodPost, "/get_phonetic/", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp); err != nil {
		return "", fmt.Errorf("phonetic: %w", err)
	}
	return resp.Phonetic, nil
}

// Dictionary 查询单词释义
func (c *Client) Dictionary(ctx context.Context, word string) (*speech.DictionaryEntry, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyText
	}

	var entry speech.DictionaryEntry
	if err := c.do(ctx, c.timeout, http.MethodGet, "/dictionary/"+url.PathEscape(word), nil, "", &entry); err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	return &entry, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body io.Reader, contentType string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("speech request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	c.logger.Debug("speech request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	return utils.DecodeResponse(resp, out)
}

// UnmarshalLenient decodes data into out, first unwrapping up to two layers of
// JSON string encoding ("{\"a\":1}" style payloads).
func UnmarshalLenient(data []byte, out interface{}) error {
	payload := bytes.TrimSpace(data)
	for i := 0; i < 2 && len(payload) > 0 && payload[0] == '"'; i++ {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return fmt.Errorf("unwrap encoded payload: %w", err)
		}
		payload = bytes.TrimSpace([]byte(inner))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
