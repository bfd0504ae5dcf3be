// The object cache is configured with flags and a single optional config file.
// The config file is stored in .txtpb format and contains the values that can be set via flags.

package config

import (
	"flag"
	"log/slog"
	"os"

	"github.com/jmgilman/go/errors"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/dynamicpb"
)

var configFilePath = flag.String("config_file", "", "Path to the .txtpb configuration file; empty means flags only.")

// InitFlags parses the command line and then applies the config file given by --config_file.
// It should be called after defining all flags and before using them. A broken config file is logged and ignored so
// the process still starts with its command line values.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Debug("Config file not specified. Skipping config initialization.")
		return
	}
	if err := LoadFile(*configFilePath); err != nil {
		slog.Error("Failed to apply config file.", "path", *configFilePath, "error", err)
	}
}

// LoadFile parses the .txtpb file at `path` and sets every flag that has a value in it.
func LoadFile(path string) error {
	configBytes, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return errors.WithContext(errors.Wrap(err, errors.CodeNotFound, "config file does not exist"), "path", path)
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to read config file")
	}
	return Apply(configBytes)
}

// Apply parses the given .txtpb content and sets every flag that has a value in it.
func Apply(configBytes []byte) error {
	md, err := configDescriptor()
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to build config schema")
	}
	conf := dynamicpb.NewMessage(md)
	if err := prototext.Unmarshal(configBytes, conf); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config file")
	}
	if err := setConfigFlags(conf); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to set flags from config file")
	}
	return nil
}
