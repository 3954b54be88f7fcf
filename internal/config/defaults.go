package config

const (
	defaultDataDir             = "~/.local/share/podscribe/data"
	defaultLogDir              = "~/.local/share/podscribe/logs"
	defaultPodcastBaseURL      = "https://api.xiaoyuzhoufm.com"
	defaultAssistantBaseURL    = "https://qianwen.biz.aliyun.com"
	defaultEfficiencyBaseURL   = "https://tw-efficiency.biz.aliyun.com"
	defaultRetryBackoffSeconds = 10
	defaultResolvePollLimit    = 300
	defaultBatchSize           = 10
	defaultPollIntervalSeconds = 60
	defaultBatchTimeoutSeconds = 3600
	defaultLogFormat           = "text"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		PodcastAPI: PodcastAPI{
			BaseURL: defaultPodcastBaseURL,
		},
		Tongyi: Tongyi{
			AssistantBaseURL:    defaultAssistantBaseURL,
			EfficiencyBaseURL:   defaultEfficiencyBaseURL,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			ResolvePollLimit:    defaultResolvePollLimit,
		},
		Transcription: Transcription{
			BatchSize:           defaultBatchSize,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			BatchTimeoutSeconds: defaultBatchTimeoutSeconds,
			CleanupStalled:      false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
