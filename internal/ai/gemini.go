package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

func NewGeminiClient(apiKey, baseURL string) *GeminiClient {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &GeminiClient{http: &http.Client{}, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *GeminiClient) Name() string { return "gemini" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiReq struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResp struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Scanned scripture is routinely flagged by the default filters.
var geminiSafety = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
}

func (c *GeminiClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "missing GEMINI_API_KEY"}
	}

	parts := []geminiPart{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}

	payload := geminiReq{
		Contents:       []geminiContent{{Role: "user", Parts: parts}},
		SafetySettings: geminiSafety,
		GenerationConfig: geminiGenerationConfig{
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxTokens,
			ResponseMimeType: "text/plain",
		},
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "marshal request", Err: err}
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "build request", Err: err}
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, classifyTransport(c.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, classifyTransport(c.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, classifyStatus(c.Name(), resp.StatusCode, raw)
	}

	var r geminiResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "decode response", Err: err}
	}
	if len(r.Candidates) == 0 {
		reason := "no candidates"
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			reason += ", block reason " + r.PromptFeedback.BlockReason
		}
		return Response{}, EmptyResponse(c.Name(), reason)
	}

	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	return Response{
		Text:         sb.String(),
		TokensIn:     r.UsageMetadata.PromptTokenCount,
		TokensOut:    r.UsageMetadata.CandidatesTokenCount,
		FinishReason: r.Candidates[0].FinishReason,
	}, nil
}
