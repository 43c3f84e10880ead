package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/speakeasy/internal/config"
	speechmodel "github.com/zhouzirui/speakeasy/internal/model/speech"
	"github.com/zhouzirui/speakeasy/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: asr, tts, assess, phonetic 或 dict")
	audioPath := flag.String("audio", "", "ASR/评测 输入音频文件路径")
	text := flag.String("text", "", "TTS/评测/音标 输入文本，dict 模式下为单词")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认自动生成)")
	speaker := flag.String("speaker", "", "TTS 发音人，可选")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	client := speech.NewClient(cfg.Backend.AIBaseURL,
		speech.WithTimeout(*timeout),
		speech.WithAssessmentTimeout(*timeout))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("AI 后端: %s (env=%s)", cfg.Backend.AIBaseURL, cfg.Env)

	switch *mode {
	case "asr":
		runASR(ctx, client, *audioPath)
	case "tts":
		runTTS(ctx, client, *text, *speaker, *outputPath)
	case "assess":
		runAssess(ctx, client, *text, *audioPath)
	case "phonetic":
		phonetic, err := client.Phonetic(ctx, *text)
		if err != nil {
			log.Fatalf("音标查询失败: %v", err)
		}
		log.Printf("音标: %s", phonetic)
	case "dict":
		entry, err := client.Dictionary(ctx, *text)
		if err != nil {
			log.Fatalf("词典查询失败: %v", err)
		}
		log.Printf("%s %s", entry.Word, entry.Phonetic)
		for _, m := range entry.Meanings {
			log.Printf("  %s: %s", m.PartOfSpeech, strings.Join(m.Definitions, "; "))
		}
	default:
		flag.Usage()
		log.Fatal("请通过 -mode 指定测试模式")
	}
}

func runASR(ctx context.Context, client *speech.Client, audioPath string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	log.Printf("开始进行 ASR 测试: file=%s size=%d", audioPath, len(data))

	transcript, err := client.Transcribe(ctx, speechmodel.TranscribeRequest{
		Filename: filepath.Base(audioPath),
		Audio:    data,
	})
	if err != nil {
		log.Fatalf("ASR 调用失败: %v", err)
	}

	log.Printf("ASR 识别成功: text=%q", transcript)
}

func runTTS(ctx context.Context, client *speech.Client, text, speaker, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.wav", time.Now().Unix())
	}

	log.Printf("开始进行 TTS 测试: speaker=%q", speaker)

	audio, err := client.Synthesize(ctx, speechmodel.TTSRequest{Text: text, Speaker: speaker})
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, 大小=%d", outputPath, len(audio))
}

func runAssess(ctx context.Context, client *speech.Client, title, audioPath string) {
	if strings.TrimSpace(title) == "" || audioPath == "" {
		log.Fatal("评测模式需要 -text 参考句子和 -audio 录音文件")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	result, err := client.AssessPronunciation(ctx, title, data)
	if err != nil {
		log.Fatalf("评测调用失败: %v", err)
	}

	log.Printf("准确率: %s%%", result.PronunciationAccuracy)
	for _, w := range result.Words() {
		log.Printf("  %-12s heard=%-12s category=%s", w.Expected, w.Heard, w.Category)
	}
}
