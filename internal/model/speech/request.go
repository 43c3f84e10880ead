package speech

// TTSRequest 语音合成请求，以表单形式提交
type TTSRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"` // 可选的发音人
}

// TranscribeRequest 语音识别请求
type TranscribeRequest struct {
	Filename string // 上传时使用的文件名，决定后端推断的格式
	Audio    []byte
}

// AssessmentRequest 发音评测请求
type AssessmentRequest struct {
	Title       string `json:"title"`       // 参考句子
	Base64Audio string `json:"base64Audio"` // data URI 或纯 base64 音频
}
