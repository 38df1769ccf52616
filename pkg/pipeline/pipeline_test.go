package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
	"github.com/shouni/phone-mockup-kit/pkg/ledger"
)

type pipelineFixture struct {
	pipeline *Pipeline
	ledger   *ledger.Ledger
	db       *gorm.DB
	warper   *mockWarper
	synth    *mockSynthesizer
	overlay  *mockOverlayer
	dir      string
}

func newFixture(t *testing.T, credits int) *pipelineFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(ledger.Models()...))
	require.NoError(t, db.Create(&ledger.User{ID: "user-1", Credits: credits}).Error)

	l, err := ledger.NewLedger(db)
	require.NoError(t, err)

	tokens, err := NewTokenService([]byte("test-secret"))
	require.NoError(t, err)

	dir := t.TempDir()
	assets, err := NewDiskAssetStore(dir, "/outputs")
	require.NoError(t, err)

	warper := &mockWarper{}
	synth := &mockSynthesizer{}
	overlay := &mockOverlayer{}

	p, err := NewPipeline(warper, synth, overlay, l, &stubGate{allow: true}, tokens, assets)
	require.NoError(t, err)

	return &pipelineFixture{
		pipeline: p, ledger: l, db: db,
		warper: warper, synth: synth, overlay: overlay, dir: dir,
	}
}

func (f *pipelineFixture) credits(t *testing.T) int {
	t.Helper()
	c, err := f.ledger.Credits(context.Background(), "user-1")
	require.NoError(t, err)
	return c
}

func TestPipeline_StepWarp(t *testing.T) {
	ctx := context.Background()

	t.Run("成功時は画像とステップ1トークンを返し残高が1減ること", func(t *testing.T) {
		f := newFixture(t, 3)

		result, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{
			Screenshot: []byte("shot"), Style: domain.StyleBasic,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Image.Data)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, 2, f.credits(t))
	})

	t.Run("レート制限超過はErrRateLimitedで残高を消費しないこと", func(t *testing.T) {
		f := newFixture(t, 3)
		f.pipeline.gate = &stubGate{allow: false}

		_, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{Screenshot: []byte("shot")})
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Equal(t, 3, f.credits(t))
		assert.Zero(t, f.warper.called)
	})

	t.Run("残高0はErrInsufficientCreditになること", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{Screenshot: []byte("shot")})
		assert.ErrorIs(t, err, domain.ErrInsufficientCredit)
	})

	t.Run("ワープ失敗時は即時返金されること", func(t *testing.T) {
		f := newFixture(t, 3)
		f.warper.warpFunc = func([]byte, domain.LayoutStyleID) ([]byte, error) {
			return nil, domain.ErrGeometry
		}

		_, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{Screenshot: []byte("shot")})
		assert.ErrorIs(t, err, domain.ErrGeometry)
		assert.Equal(t, 3, f.credits(t))

		var count int64
		require.NoError(t, f.db.Model(&ledger.CreditTransaction{}).
			Where("status = ?", domain.TxPending).Count(&count).Error)
		assert.EqualValues(t, 0, count)
	})
}

func TestPipeline_StepBackground(t *testing.T) {
	ctx := context.Background()

	step1 := func(t *testing.T, f *pipelineFixture) *domain.StepResult {
		t.Helper()
		result, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{
			Screenshot: []byte("shot"), Style: domain.StyleBasic,
		})
		require.NoError(t, err)
		return result
	}

	t.Run("正しいトークンで背景が置き換わること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)

		result, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: s1.Image.Data, BackgroundID: domain.BackgroundDeepIndigo, Token: s1.Token,
		})
		require.NoError(t, err)
		assert.Equal(t, "deep indigo to purple vibrant gradient", f.synth.lastPrompt)
		assert.NotEmpty(t, result.Token)
	})

	t.Run("Skip指定では生成を呼ばず画像をそのまま通すこと", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)

		result, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: s1.Image.Data, Skip: true, Token: s1.Token,
		})
		require.NoError(t, err)
		assert.Equal(t, s1.Image.Data, result.Image.Data)
		assert.Zero(t, f.synth.called)
	})

	t.Run("レート制限超過は生成モデルを呼ばずErrRateLimitedになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)
		f.pipeline.gate = &stubGate{allow: false}

		_, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: s1.Image.Data, BackgroundID: domain.BackgroundCharcoal, Token: s1.Token,
		})
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Zero(t, f.synth.called)
	})

	t.Run("画像なしはErrInvalidInputになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)

		_, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Token: s1.Token,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("画像を改変するとErrTokenになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)

		tampered := append([]byte{}, s1.Image.Data...)
		tampered[0] ^= 0xFF
		_, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: tampered, Token: s1.Token,
		})
		assert.ErrorIs(t, err, domain.ErrToken)
	})

	t.Run("トークンなしではErrTokenになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)

		_, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: s1.Image.Data,
		})
		assert.ErrorIs(t, err, domain.ErrToken)
	})

	t.Run("生成モデル失敗時は返金されFAILEDになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1 := step1(t, f)
		f.synth.replaceFunc = func(context.Context, []byte, string) (*domain.ImageResult, error) {
			return nil, &domain.CollaboratorError{
				Kind: domain.CollaboratorOverloaded,
				Err:  errors.New("model overloaded"),
			}
		}

		_, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: s1.Image.Data, Token: s1.Token,
		})
		var ce *domain.CollaboratorError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 3, f.credits(t))

		var count int64
		require.NoError(t, f.db.Model(&ledger.CreditTransaction{}).
			Where("status = ?", domain.TxFailed).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})
}

func TestPipeline_StepText(t *testing.T) {
	ctx := context.Background()

	advanceToStep2 := func(t *testing.T, f *pipelineFixture) *domain.StepResult {
		t.Helper()
		s1, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{
			Screenshot: []byte("shot"), Style: domain.StyleBasic,
		})
		require.NoError(t, err)
		s2, err := f.pipeline.StepBackground(ctx, "user-1", domain.BackgroundRequest{
			Image: s1.Image.Data, BackgroundID: domain.BackgroundCharcoal, Token: s1.Token,
		})
		require.NoError(t, err)
		return s2
	}

	t.Run("成果物が保存されトランザクションが確定すること", func(t *testing.T) {
		f := newFixture(t, 3)
		s2 := advanceToStep2(t, f)

		final, err := f.pipeline.StepText(ctx, "user-1", domain.TextRequest{
			Image: s2.Image.Data,
			Headline: domain.HeadlineSpec{
				Text: "Track your day", Font: domain.FontStandard, Color: "white",
			},
			Token: s2.Token,
			Style: domain.StyleBasic, BackgroundID: domain.BackgroundCharcoal,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, final.AssetURL)

		// ディスク上にも実体があること
		entries, err := os.ReadDir(filepath.Join(f.dir, "user-1"))
		require.NoError(t, err)
		require.Len(t, entries, 1)

		var tx ledger.CreditTransaction
		require.NoError(t, f.db.First(&tx).Error)
		assert.Equal(t, domain.TxCompleted, tx.Status)

		outputs, err := f.ledger.Outputs(ctx, "user-1", 0)
		require.NoError(t, err)
		require.Len(t, outputs, 1)
		assert.Equal(t, final.AssetURL, outputs[0].URL)
	})

	t.Run("レート制限超過は合成せずErrRateLimitedになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s2 := advanceToStep2(t, f)
		f.pipeline.gate = &stubGate{allow: false}

		_, err := f.pipeline.StepText(ctx, "user-1", domain.TextRequest{
			Image: s2.Image.Data, Headline: domain.HeadlineSpec{Text: "hi"}, Token: s2.Token,
		})
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Zero(t, f.overlay.called)
	})

	t.Run("画像なしはErrInvalidInputになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s2 := advanceToStep2(t, f)

		_, err := f.pipeline.StepText(ctx, "user-1", domain.TextRequest{
			Headline: domain.HeadlineSpec{Text: "hi"}, Token: s2.Token,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ステップ1のトークンではErrTokenになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s1, err := f.pipeline.StepWarp(ctx, "user-1", domain.WarpRequest{
			Screenshot: []byte("shot"), Style: domain.StyleBasic,
		})
		require.NoError(t, err)

		_, err = f.pipeline.StepText(ctx, "user-1", domain.TextRequest{
			Image: s1.Image.Data, Token: s1.Token,
		})
		assert.ErrorIs(t, err, domain.ErrToken)
	})

	t.Run("確定済みトランザクションの再実行はErrTokenになること", func(t *testing.T) {
		f := newFixture(t, 3)
		s2 := advanceToStep2(t, f)
		req := domain.TextRequest{
			Image:    s2.Image.Data,
			Headline: domain.HeadlineSpec{Text: "hi"},
			Token:    s2.Token,
		}

		_, err := f.pipeline.StepText(ctx, "user-1", req)
		require.NoError(t, err)

		_, err = f.pipeline.StepText(ctx, "user-1", req)
		assert.ErrorIs(t, err, domain.ErrToken)
	})

	t.Run("保存失敗時はPENDINGのまま残ること", func(t *testing.T) {
		f := newFixture(t, 3)
		s2 := advanceToStep2(t, f)
		f.pipeline.assets = failingAssets{}

		_, err := f.pipeline.StepText(ctx, "user-1", domain.TextRequest{
			Image: s2.Image.Data, Headline: domain.HeadlineSpec{Text: "hi"}, Token: s2.Token,
		})
		assert.ErrorIs(t, err, domain.ErrPersistence)

		var tx ledger.CreditTransaction
		require.NoError(t, f.db.First(&tx).Error)
		assert.Equal(t, domain.TxPending, tx.Status)
	})
}

type failingAssets struct{}

func (failingAssets) Save(ctx context.Context, userID, name string, data []byte) (string, error) {
	return "", domain.ErrPersistence
}

func TestPipeline_GenerateAll(t *testing.T) {
	ctx := context.Background()

	t.Run("3ステップが連結され進捗が順に通知されること", func(t *testing.T) {
		f := newFixture(t, 3)

		var stages []string
		final, err := f.pipeline.GenerateAll(ctx, "user-1", domain.GenerateRequest{
			Screenshot:   []byte("shot"),
			Style:        domain.StyleBasic,
			BackgroundID: domain.BackgroundCharcoal,
			Headline: domain.HeadlineSpec{
				Text: "Track your day", Font: domain.FontStandard, Color: "white",
			},
		}, func(stage string) { stages = append(stages, stage) })
		require.NoError(t, err)

		assert.Equal(t, []string{"warp", "background", "text"}, stages)
		assert.NotEmpty(t, final.AssetURL)
		assert.Equal(t, 1, f.warper.called)
		assert.Equal(t, 1, f.synth.called)
		assert.Equal(t, 1, f.overlay.called)
		assert.Equal(t, 2, f.credits(t))

		var tx ledger.CreditTransaction
		require.NoError(t, f.db.First(&tx).Error)
		assert.Equal(t, domain.TxCompleted, tx.Status)
	})

	t.Run("途中失敗時は消費が残らないこと", func(t *testing.T) {
		f := newFixture(t, 3)
		f.synth.replaceFunc = func(context.Context, []byte, string) (*domain.ImageResult, error) {
			return nil, &domain.CollaboratorError{
				Kind: domain.CollaboratorQuotaExceeded,
				Err:  errors.New("quota"),
			}
		}

		_, err := f.pipeline.GenerateAll(ctx, "user-1", domain.GenerateRequest{
			Screenshot: []byte("shot"), Style: domain.StyleBasic,
		}, nil)
		require.Error(t, err)
		assert.Equal(t, 3, f.credits(t))
	})
}
