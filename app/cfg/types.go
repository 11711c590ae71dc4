package cfg

type Cfg struct {
	// Storage configuration
	DataDir     string
	DownloadDir string

	// Application configuration
	Port                string
	FeedLimit           int
	HookLimit           int
	DownloadLimit       int
	BitTorrentLimit     int
	AILimit             int
	NotificationLimit   int
	ReverseTriggerLimit int
	ArticleSaveDays     int
	ResourceSaveDays    int
	LogSaveDays         int
	SeedFile            string

	// Collaborator configuration
	GeminiAPIKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
