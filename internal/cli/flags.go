package cli

import "cgr/internal/config"

// Flags holds command-line flags
type Flags struct {
	ConfigFile  string
	ProjectPath string
	NameFilter  string
	Group       string
	LogLevel    string
	Listen      string
	NoHistory   bool
	Progress    bool
	Verbose     bool
	OnlyFailed  bool
	OpenFaills  bool
	RunOnStart  bool
	Limit       int
}

// ToConfigFlags converts CLI flags to config flags
func (f *Flags) ToConfigFlags() config.Flags {
	return config.Flags{
		ConfigFile:  f.ConfigFile,
		ProjectPath: f.ProjectPath,
		NameFilter:  f.NameFilter,
		Group:       f.Group,
		LogLevel:    f.LogLevel,
		Listen:      f.Listen,
		NoHistory:   f.NoHistory,
		Progress:    f.Progress,
		Verbose:     f.Verbose,
		OnlyFailed:  f.OnlyFailed,
		Open:        f.OpenFaills,
		RunOnStart:  f.RunOnStart,
		Limit:       f.Limit,
	}
}
