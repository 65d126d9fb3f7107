package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Options holds the values parsed from the command line
type Options struct {
	InputFile  string
	OutputFile string
	Sigma      float64
	Threshold  float64

	// ConfigPath is an optional YAML file providing the remaining settings
	ConfigPath string

	// set records which flags appeared explicitly
	set map[string]bool
}

// UsageError reports a malformed command line. No I/O has happened when it is returned.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// ParseArgs parses the command line without the program name. The input and
// output paths come first, followed by -sigma, -threshold and -config in any order.
func ParseArgs(args []string) (*Options, error) {
	if len(args) < 2 {
		return nil, &UsageError{Msg: "missing input or output path"}
	}

	opts := &Options{
		InputFile:  args[0],
		OutputFile: args[1],
		set:        make(map[string]bool),
	}

	// every flag takes exactly one separate value token
	for i := 2; i < len(args); i += 2 {
		if a := args[i]; strings.HasPrefix(a, "--") || strings.Contains(a, "=") {
			return nil, &UsageError{Msg: fmt.Sprintf("can not parse argument %s", a)}
		}
	}

	fs := flag.NewFlagSet("medialcurve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Float64Var(&opts.Sigma, "sigma", DefaultSigma, "sigma for recursive gaussian filter")
	fs.Float64Var(&opts.Threshold, "threshold", DefaultThreshold, "threshold for the average outward flux")
	fs.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")

	if err := fs.Parse(args[2:]); err != nil {
		return nil, &UsageError{Msg: fmt.Sprintf("can not parse arguments: %v", err)}
	}
	if fs.NArg() > 0 {
		return nil, &UsageError{Msg: fmt.Sprintf("can not parse argument %s", fs.Arg(0))}
	}

	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	return opts, nil
}

// IsSet reports whether the named flag was given explicitly.
func (o *Options) IsSet(name string) bool {
	return o.set[name]
}

// Resolve loads the configuration file named by -config, if any, and applies
// the explicit command-line flags on top of it.
func (o *Options) Resolve() (*Config, error) {
	cfg := DefaultConfig()
	if o.ConfigPath != "" {
		loaded, err := LoadConfig(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.IsSet("sigma") {
		cfg.Filter.Sigma = o.Sigma
	}
	if o.IsSet("threshold") {
		cfg.Filter.Threshold = o.Threshold
	}

	return cfg, nil
}

// Usage writes the command synopsis to w.
func Usage(w io.Writer, program string) {
	fmt.Fprintf(w, "Usage: %s [input image] [output image] <parameters>\n", program)
	fmt.Fprintf(w, "    -sigma <float>      sigma for recursive gaussian filter [%.1f]\n", DefaultSigma)
	fmt.Fprintf(w, "    -threshold <float>  threshold for the average outward flux [%.1f]\n", DefaultThreshold)
	fmt.Fprintf(w, "    -config <file>      YAML configuration file\n")
}
