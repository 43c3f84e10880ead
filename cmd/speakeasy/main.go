package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/audio"
	"github.com/zhouzirui/speakeasy/internal/config"
	"github.com/zhouzirui/speakeasy/internal/logging"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/internal/pronunciation"
	"github.com/zhouzirui/speakeasy/internal/service/backend"
	chatsvc "github.com/zhouzirui/speakeasy/internal/service/chat"
	"github.com/zhouzirui/speakeasy/internal/service/speech"
	"github.com/zhouzirui/speakeasy/internal/session"
	"github.com/zhouzirui/speakeasy/internal/ui"
)

func main() {
	scenarioID := flag.String("scenario", "", "练习场景 ID，留空则与主助手聊天")
	customName := flag.String("custom-name", "", "自定义场景中 AI 的名字")
	customRole := flag.String("custom-role", "", "自定义场景中 AI 的角色")
	customUserRole := flag.String("custom-user-role", "", "自定义场景中学习者的角色")
	customContext := flag.String("custom-context", "", "自定义场景的背景描述")
	logPath := flag.String("log", filepath.Join(os.TempDir(), "speakeasy.log"), "日志文件路径")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 终端界面占用了 stdout，日志只写文件
	logger, err := logging.ToFile(cfg.Env, *logPath)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logger.Sync()

	backendClient := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger.Named("backend")))
	speechClient := speech.NewClient(cfg.Backend.AIBaseURL,
		speech.WithTimeout(cfg.Backend.Timeout),
		speech.WithAssessmentTimeout(cfg.Backend.PronunciationTimeout),
		speech.WithLogger(logger.Named("speech")))

	target := resolveTarget(ctx, backendClient, logger, *scenarioID, persona.CustomScenario{
		AIName:   *customName,
		Role:     *customRole,
		UserRole: *customUserRole,
		Context:  *customContext,
	})
	if err := target.Validate(); err != nil {
		log.Fatalf("invalid conversation target: %v", err)
	}

	estimator, err := chatsvc.NewEstimator(cfg.Chat.TokenEstimator)
	if err != nil {
		logger.Warn("token estimator unavailable, counting words", zap.Error(err))
	}

	recorder := audio.NewFFmpegRecorder(cfg.Audio.FFmpegCommand, cfg.Audio.InputFormat, cfg.Audio.InputDevice, cfg.Audio.RecordingDir)
	player := audio.NewFFplayPlayer(cfg.Audio.FFplayCommand, cfg.Audio.RecordingDir)
	desktop := audio.NewDesktopSession(logger.Named("audio"))

	notifier := ui.NewNotifier()
	sess := session.New(session.Deps{
		Backend:      backendClient,
		Speech:       speechClient,
		Recorder:     recorder,
		Player:       player,
		Configurator: desktop,
		Logger:       logger.Named("session"),
		Listener:     notifier,
	}, session.Options{
		Target:           target,
		TokenBudget:      cfg.Chat.TokenBudget,
		Estimator:        estimator,
		PlaybackAttempts: cfg.Chat.PlaybackAttempts,
		PopupTTL:         cfg.Chat.PopupTTL,
	})
	defer sess.Close()

	model := ui.NewChatModel(ctx, sess, notifier, pronunciation.Deps{
		Assessor:     speechClient,
		Recorder:     recorder,
		Player:       player,
		Configurator: desktop,
		Logger:       logger.Named("practice"),
	}, logger.Named("ui"))

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveTarget picks who the learner talks to. Catalog details are fetched
// up front so roleplay turns carry them; a failed fetch still starts the
// scenario by id.
func resolveTarget(ctx context.Context, client *backend.Client, logger *zap.Logger, scenarioID string, custom persona.CustomScenario) persona.Target {
	switch {
	case scenarioID != "":
		details, err := client.Scenario(ctx, scenarioID)
		if err != nil {
			logger.Warn("failed to load scenario details", zap.String("scenario_id", scenarioID), zap.Error(err))
			return persona.ScenarioTarget(scenarioID, nil)
		}
		return persona.ScenarioTarget(scenarioID, details)
	case custom.AIName != "" || custom.Role != "":
		return persona.CustomTarget(custom)
	default:
		return persona.AssistantTarget(persona.MainAssistant())
	}
}
