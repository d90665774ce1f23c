package config

const (
	// DefaultProjectPath is the default project path
	DefaultProjectPath = "."
	// DefaultConfigFile is the YAML file read from the project path when present
	DefaultConfigFile = "cgr.yaml"
	// DefaultOutputJSONFile is the default output JSON file name
	DefaultOutputJSONFile = "cgr-results.json"
	// DefaultOutputJSONDir is the default output directory
	DefaultOutputJSONDir = "storage"
	// DefaultHistoryDB is the default run history database file
	DefaultHistoryDB = "cgr-history.db"
	// DefaultLogLevel is the default logrus level
	DefaultLogLevel = "warn"
	// DefaultListenAddr is the default address of the serve command
	DefaultListenAddr = ":8080"

	// DefaultDBHost is the default MySQL host for database resources
	DefaultDBHost = "127.0.0.1"
	// DefaultDBPort is the default MySQL port
	DefaultDBPort = "3306"
	// DefaultDBUser is the default MySQL user
	DefaultDBUser = "root"
	// DefaultDBPrefix prefixes every scratch database name
	DefaultDBPrefix = "cgr"
)

// envPrefix prefixes the environment overrides of this tool.
const envPrefix = "CGR_"
