package types

// GlobalFlags holds flag values shared by all CLI commands.
type GlobalFlags struct {
	Profile      string
	SourceRootID string
	SinkBucket   string
	ObjectPrefix string
	OutputFormat OutputFormat
	Config       string
	LogFile      string
	Quiet        bool
	Verbose      bool
	Debug        bool
	JSON         bool
}
