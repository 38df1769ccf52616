package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
	"github.com/shouni/phone-mockup-kit/pkg/ledger"
)

// StaleThreshold は定期返金で PENDING とみなす滞留時間の閾値です。
const StaleThreshold = 10 * time.Minute

// Authenticator はリクエストから利用者IDを解決するインターフェースです。
// セッション管理の方式はここでは扱わず、解決済みのIDだけを受け取ります。
type Authenticator interface {
	UserID(r *http.Request) (string, error)
}

// Generator は3ステップパイプラインのうちハンドラーが必要とする範囲です。
type Generator interface {
	StepWarp(ctx context.Context, userID string, req domain.WarpRequest) (*domain.StepResult, error)
	StepBackground(ctx context.Context, userID string, req domain.BackgroundRequest) (*domain.StepResult, error)
	StepText(ctx context.Context, userID string, req domain.TextRequest) (*domain.FinalResult, error)
	GenerateAll(ctx context.Context, userID string, req domain.GenerateRequest, progress func(stage string)) (*domain.FinalResult, error)
}

// LedgerReader は残高・成果物照会と管理操作のうちハンドラーが必要とする範囲です。
type LedgerReader interface {
	Credits(ctx context.Context, userID string) (int, error)
	Outputs(ctx context.Context, userID string, limit int) ([]ledger.Output, error)
	Grant(ctx context.Context, userID string, amountCents, explicitCredits int) (int, error)
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Pruner はレート制限記録などの定期削除を抽象化します。nil 可（削除をスキップ）。
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) error
}

// Server は画像生成パイプラインの HTTP インターフェースです。
type Server struct {
	generator  Generator
	ledger     LedgerReader
	auth       Authenticator
	pruner     Pruner
	cronSecret string
	outputsDir string
}

// New は依存関係を注入して Server を初期化します。
// cronSecret が空の場合、定期返金エンドポイントはすべて拒否されます。
func New(generator Generator, ledgerReader LedgerReader, auth Authenticator, pruner Pruner, cronSecret, outputsDir string) (*Server, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator (Generator) is required")
	}
	if ledgerReader == nil {
		return nil, fmt.Errorf("ledgerReader (LedgerReader) is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("auth (Authenticator) is required")
	}
	return &Server{
		generator:  generator,
		ledger:     ledgerReader,
		auth:       auth,
		pruner:     pruner,
		cronSecret: cronSecret,
		outputsDir: outputsDir,
	}, nil
}

// Handler はルーティング済みの http.Handler を返します。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate/step1-warp", s.handleStepWarp)
	mux.HandleFunc("POST /api/generate/step2-background", s.handleStepBackground)
	mux.HandleFunc("POST /api/generate/step3-text", s.handleStepText)
	mux.HandleFunc("POST /api/generate", s.handleGenerateAll)
	mux.HandleFunc("GET /api/credits", s.handleCredits)
	mux.HandleFunc("POST /api/credits/grant", s.handleGrant)
	mux.HandleFunc("GET /api/outputs", s.handleOutputs)
	mux.HandleFunc("POST /api/cron/refund-pending", s.handleRefundPending)
	if s.outputsDir != "" {
		mux.Handle("GET /outputs/", http.StripPrefix("/outputs/",
			http.FileServer(http.Dir(s.outputsDir))))
	}
	return mux
}

type stepResponse struct {
	Success  bool   `json:"success"`
	Image    []byte `json:"image"`
	MimeType string `json:"mimeType"`
	Token    string `json:"token"`
}

type finalResponse struct {
	Success  bool   `json:"success"`
	Image    []byte `json:"image"`
	MimeType string `json:"mimeType"`
	AssetURL string `json:"assetUrl"`
}

type warpRequest struct {
	Screenshot []byte `json:"screenshot"`
	Style      string `json:"style"`
}

func (s *Server) handleStepWarp(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	var req warpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}

	result, err := s.generator.StepWarp(r.Context(), userID, domain.WarpRequest{
		Screenshot: req.Screenshot,
		Style:      domain.LayoutStyleID(req.Style),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{
		Success: true,
		Image: result.Image.Data, MimeType: result.Image.MimeType, Token: result.Token,
	})
}

type backgroundRequest struct {
	Image        []byte `json:"image"`
	BackgroundID string `json:"backgroundId"`
	CustomPrompt string `json:"customPrompt"`
	Skip         bool   `json:"skip"`
	Token        string `json:"token"`
}

func (s *Server) handleStepBackground(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	var req backgroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}

	result, err := s.generator.StepBackground(r.Context(), userID, domain.BackgroundRequest{
		Image:        req.Image,
		BackgroundID: domain.BackgroundID(req.BackgroundID),
		CustomPrompt: req.CustomPrompt,
		Skip:         req.Skip,
		Token:        req.Token,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{
		Success: true,
		Image: result.Image.Data, MimeType: result.Image.MimeType, Token: result.Token,
	})
}

type textRequest struct {
	Image        []byte `json:"image"`
	Headline     string `json:"headline"`
	Font         string `json:"font"`
	Color        string `json:"color"`
	Token        string `json:"token"`
	Style        string `json:"style"`
	BackgroundID string `json:"backgroundId"`
}

func (s *Server) handleStepText(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}

	result, err := s.generator.StepText(r.Context(), userID, domain.TextRequest{
		Image: req.Image,
		Headline: domain.HeadlineSpec{
			Text:  req.Headline,
			Font:  domain.NormalizeFontID(req.Font),
			Color: req.Color,
		},
		Token:        req.Token,
		Style:        domain.LayoutStyleID(req.Style),
		BackgroundID: domain.BackgroundID(req.BackgroundID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finalResponse{
		Success: true,
		Image: result.Image.Data, MimeType: result.Image.MimeType, AssetURL: result.AssetURL,
	})
}

type generateRequest struct {
	Screenshot   []byte `json:"screenshot"`
	Style        string `json:"style"`
	BackgroundID string `json:"backgroundId"`
	CustomPrompt string `json:"customPrompt"`
	Skip         bool   `json:"skip"`
	Headline     string `json:"headline"`
	Font         string `json:"font"`
	Color        string `json:"color"`
}

// handleGenerateAll は進捗を NDJSON で逐次送出する単一呼び出しモードです。
// 失敗時も HTTP 200 のストリーム内でエラー行として通知します（送出済みのため）。
func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	emit := func(v any) {
		if err := enc.Encode(v); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	result, err := s.generator.GenerateAll(r.Context(), userID, domain.GenerateRequest{
		Screenshot:   req.Screenshot,
		Style:        domain.LayoutStyleID(req.Style),
		BackgroundID: domain.BackgroundID(req.BackgroundID),
		CustomPrompt: req.CustomPrompt,
		Skip:         req.Skip,
		Headline: domain.HeadlineSpec{
			Text:  req.Headline,
			Font:  domain.NormalizeFontID(req.Font),
			Color: req.Color,
		},
	}, func(stage string) {
		emit(map[string]any{"stage": stage})
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "一括生成に失敗しました", "user_id", userID, "error", err)
		emit(map[string]any{
			"success":   false,
			"error":     domain.UserMessage(err),
			"retryable": domain.Retryable(err),
		})
		return
	}

	emit(map[string]any{
		"success":  true,
		"done":     true,
		"image":    result.Image.Data,
		"mimeType": result.Image.MimeType,
		"assetUrl": result.AssetURL,
	})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	credits, err := s.ledger.Credits(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": credits})
}

type grantRequest struct {
	AmountCents int `json:"amountCents"`
	Credits     int `json:"credits"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}

	granted, err := s.ledger.Grant(r.Context(), userID, req.AmountCents, req.Credits)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"granted": granted})
}

type outputEntry struct {
	URL       string    `json:"url"`
	Settings  string    `json:"settings,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	outputs, err := s.ledger.Outputs(r.Context(), userID, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries := make([]outputEntry, 0, len(outputs))
	for _, o := range outputs {
		entries = append(entries, outputEntry{URL: o.URL, Settings: o.Settings, CreatedAt: o.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": entries})
}

// handleRefundPending は滞留した PENDING トランザクションをまとめて返金します。
// シークレット未設定時は全拒否します。
func (s *Server) handleRefundPending(w http.ResponseWriter, r *http.Request) {
	if s.cronSecret == "" || !validBearer(r, s.cronSecret) {
		writeError(w, r, domain.ErrAuthentication)
		return
	}

	refunded, err := s.ledger.SweepStale(r.Context(), StaleThreshold)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// 返金と同じ周期でウィンドウ外のレート制限記録も掃除する
	if s.pruner != nil {
		if err := s.pruner.Prune(r.Context(), StaleThreshold); err != nil {
			slog.WarnContext(r.Context(), "レート制限記録の削除に失敗しました", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"refunded": refunded})
}

func validBearer(r *http.Request, secret string) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("レスポンスの書き込みに失敗しました", "error", err)
	}
}

// writeError は失敗分類をステータスコードと利用者向けメッセージへ写像します。
// 内部詳細はログにのみ残し、再試行の可否だけをヒントとして返します。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "リクエスト処理に失敗しました",
			"method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.WarnContext(r.Context(), "リクエストを拒否しました",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{
		"success":   false,
		"error":     domain.UserMessage(err),
		"retryable": domain.Retryable(err),
	})
}
