// Package ai はAI補完プロバイダーとの連携機能を提供する。
// Gemini APIの呼び出しクライアントを含む。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// defaultEndpoint はGemini generateContent APIのベースエンドポイント。
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	// defaultModel は補完に使用するデフォルトモデル。
	defaultModel = "gemini-2.5-flash"
)

// CompletionClient はAI補完プロバイダーのインターフェース。
// 会話履歴を渡して応答テキストを1件生成する。
type CompletionClient interface {
	// Complete は会話履歴に対する応答テキストを生成する。
	// 履歴は時系列順で、最後の要素がユーザーの最新メッセージ。
	Complete(ctx context.Context, history []Turn) (string, error)
}

// Turn は会話履歴の1ターンを表す。
type Turn struct {
	Role    string // "user" または "model"
	Content string
}

// GeminiClient はGemini APIのクライアント。
type GeminiClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewGeminiClient はGeminiClientの新しいインスタンスを生成する。
// modelが空の場合はデフォルトモデルを使用する。
func NewGeminiClient(httpClient *http.Client, logger *slog.Logger, apiKey, model string) *GeminiClient {
	if model == "" {
		model = defaultModel
	}
	return &GeminiClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   defaultEndpoint,
	}
}

// SetEndpoint はAPIエンドポイントを差し替える。テスト用。
func (c *GeminiClient) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// geminiRequest はgenerateContentリクエストのボディ。
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse はgenerateContentレスポンスのボディ。
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Complete は会話履歴に対する応答テキストを生成する。
// 失敗時はエラーを返す（フォールバック文言の適用は呼び出し元が行う）。
func (c *GeminiClient) Complete(ctx context.Context, history []Turn) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("会話履歴が空です")
	}

	contents := make([]geminiContent, 0, len(history))
	for _, turn := range history {
		contents = append(contents, geminiContent{
			Role:  turn.Role,
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}

	payload, err := json.Marshal(geminiRequest{Contents: contents})
	if err != nil {
		return "", fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("model", c.model),
		)
		return "", fmt.Errorf("Gemini APIがステータス %d を返しました", resp.StatusCode)
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("Gemini APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("レスポンスに候補が含まれていません")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("レスポンステキストが空です")
	}

	return text, nil
}

// compile-time interface check
var _ CompletionClient = (*GeminiClient)(nil)
