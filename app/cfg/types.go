package cfg

type Cfg struct {
	// Application configuration
	Port              string
	BaseUrl           string
	FeedsFile         string
	WorkerCount       int
	SchedulerInterval int
	PollInterval      int
	APIAccessKey      string

	// Collaborators
	RedisURL     string
	GeminiAPIKey string
	SummaryModel string

	// WebSub
	LeaseSeconds int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
