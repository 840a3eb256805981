package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
)

var ErrInvalidHostPort = errors.New("invalid port specified in MINBPE_HOST")

var (
	// Set via MINBPE_DEBUG in the environment
	Debug bool
	// Set via MINBPE_TRACE in the environment
	Trace bool
	// Set via MINBPE_TRAIN_WORKERS in the environment
	TrainWorkers int
	// Set via MINBPE_ENCODE_CACHE in the environment
	EncodeCache int
	// Set via MINBPE_NOPROGRESS in the environment
	NoProgress bool
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"MINBPE_DEBUG":         {"MINBPE_DEBUG", Debug, "Show additional debug information (e.g. MINBPE_DEBUG=1)"},
		"MINBPE_TRACE":         {"MINBPE_TRACE", Trace, "Log every merge and encode call"},
		"MINBPE_HOST":          {"MINBPE_HOST", "", "IP Address for the minbpe server (default 127.0.0.1:11535)"},
		"MINBPE_TRAIN_WORKERS": {"MINBPE_TRAIN_WORKERS", TrainWorkers, "Goroutines used to count pairs during training (default: number of CPUs)"},
		"MINBPE_ENCODE_CACHE":  {"MINBPE_ENCODE_CACHE", EncodeCache, "Chunks memoized by the server encoder, 0 disables (default 4096)"},
		"MINBPE_NOPROGRESS":    {"MINBPE_NOPROGRESS", NoProgress, "Do not show training progress"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// clean returns the value of key with quotes and spaces trimmed. Unset keys
// fall back to the config file.
func clean(key string) string {
	if v := strings.Trim(os.Getenv(key), "\"' "); v != "" {
		return v
	}
	return strings.Trim(GetConfigValue(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug, Trace, NoProgress = false, false, false
	TrainWorkers = runtime.NumCPU()
	EncodeCache = 4096

	if debug := clean("MINBPE_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if trace := clean("MINBPE_TRACE"); trace != "" {
		d, err := strconv.ParseBool(trace)
		if err == nil {
			Trace = d
		}
	}

	if workers := clean("MINBPE_TRAIN_WORKERS"); workers != "" {
		val, err := strconv.Atoi(workers)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "MINBPE_TRAIN_WORKERS", workers, "error", err)
		} else {
			TrainWorkers = val
		}
	}

	if size := clean("MINBPE_ENCODE_CACHE"); size != "" {
		val, err := strconv.Atoi(size)
		if err != nil || val < 0 {
			slog.Error("invalid setting", "MINBPE_ENCODE_CACHE", size, "error", err)
		} else {
			EncodeCache = val
		}
	}

	if noprogress := clean("MINBPE_NOPROGRESS"); noprogress != "" {
		NoProgress = true
	}
}

type HostPort struct {
	Host string
	Port string
}

func (h HostPort) String() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Host returns the address the server listens on, read from MINBPE_HOST.
func Host() (*HostPort, error) {
	defaultPort := "11535"

	hostVar := clean("MINBPE_HOST")
	host, port, err := net.SplitHostPort(hostVar)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostVar, "[]")); ip != nil {
			host = ip.String()
		} else if hostVar != "" {
			host = hostVar
		}
	}

	if portNum, err := strconv.ParseInt(port, 10, 32); err != nil || portNum > 65535 || portNum < 0 {
		return nil, ErrInvalidHostPort
	}

	return &HostPort{Host: host, Port: port}, nil
}
