package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// LearnCommand records one navigation or fetch.
type LearnCommand struct {
	Reason  string `long:"reason" description:"toplevel | subresource | redirect | startup" required:"true"`
	Target  string `long:"target" description:"URI that was loaded" required:"true"`
	Referer string `long:"referer" description:"Page that caused the load (subresource, redirect)"`
	Private bool   `long:"private" description:"Treat as a private browsing load (nothing is recorded)"`

	globals *GlobalFlags
	version string
}

// PredictCommand asks the engine what to warm up for a navigation.
type PredictCommand struct {
	Reason  string `long:"reason" description:"load | link | startup" required:"true"`
	Target  string `long:"target" description:"URI about to be loaded (load, link)"`
	Referer string `long:"referer" description:"Page holding the link (link)"`
	Private bool   `long:"private" description:"Treat as a private browsing load (nothing is predicted)"`
	Live    bool   `long:"execute" description:"Actually preconnect and resolve instead of only printing"`

	globals *GlobalFlags
	version string
}

// ResetCommand wipes everything learned.
type ResetCommand struct {
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows database statistics and configuration summary.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// ServeCommand runs the local HTTP daemon.
type ServeCommand struct {
	Host     string `long:"host" description:"Override daemon host"`
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}
