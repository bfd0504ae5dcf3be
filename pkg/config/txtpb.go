package config

import (
	"encoding/base64"
	"flag"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"
)

// skippedProtobufFlags is the list of command line flags that don't belong in the config file.
var skippedProtobufFlags = []string{"print_version", "config_file"}

const durationMessageName = "google.protobuf.Duration"

// isLeaf reports whether the field carries a flag value rather than a group of flags.
func isLeaf(fd protoreflect.FieldDescriptor) bool {
	return fd.Kind() != protoreflect.MessageKind || fd.Message().FullName() == durationMessageName
}

// protobufValueToString converts a leaf field value to the string form accepted by its flag.
func protobufValueToString(fd protoreflect.FieldDescriptor, v protoreflect.Value) (string, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return strconv.FormatBool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(v.Int(), 10), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(v.Uint(), 10), nil
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	case protoreflect.MessageKind:
		if fd.Message().FullName() != durationMessageName {
			return "", fmt.Errorf("unsupported message leaf: %s", fd.Message().FullName())
		}
		// The config message is dynamic, so the duration is read field by field.
		msg := v.Message()
		fields := msg.Descriptor().Fields()
		duration := &durationpb.Duration{
			Seconds: msg.Get(fields.ByName("seconds")).Int(),
			Nanos:   int32(msg.Get(fields.ByName("nanos")).Int()),
		}
		if err := duration.CheckValid(); err != nil {
			return "", fmt.Errorf("invalid duration: %w", err)
		}
		return duration.AsDuration().String(), nil
	default:
		return "", fmt.Errorf("unsupported kind: %v", fd.Kind())
	}
}

// collectFlags collects the flag values that are set in the given config message into `flags`.
func collectFlags(flags map[ /*flagName*/ string] /*flagValue*/ string, m protoreflect.Message) error {
	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.IsList() || fd.IsMap() {
			err = fmt.Errorf("repeated/map not supported: %s", fd.FullName())
			return false
		}
		if !isLeaf(fd) {
			err = collectFlags(flags, v.Message())
			return err == nil
		}
		flagName := string(fd.Name())
		stringValue, convErr := protobufValueToString(fd, v)
		if convErr != nil {
			err = fmt.Errorf("failed to convert %s: %w", fd.FullName(), convErr)
			return false
		}
		if _, alreadyExists := flags[flagName]; alreadyExists {
			err = fmt.Errorf("flag '%s' has multiple entries in txtpb config: '%s'", flagName, fd.FullName())
			return false
		}
		flags[flagName] = stringValue
		return true
	})
	return err
}

// setConfigFlags sets all the filled leaves of `conf` to the global flag variables.
func setConfigFlags(conf protoreflect.Message) error {
	configFlags := make(map[ /*flagName*/ string] /*flagValue*/ string)
	if err := collectFlags(configFlags, conf); err != nil {
		return fmt.Errorf("failed to collect flags: %w", err)
	}
	for flagName, flagValue := range configFlags {
		if setErr := flag.Set(flagName, flagValue); setErr != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, setErr)
		}
	}
	return nil
}

// getDefinedFlags returns the set of flag names defined inside the given config schema.
func getDefinedFlags(md protoreflect.MessageDescriptor) (map[ /*flagName*/ string]struct{}, error) {
	flagSet := make(map[ /*flagName*/ string]struct{})
	var walkFields func(md protoreflect.MessageDescriptor) error
	walkFields = func(md protoreflect.MessageDescriptor) error {
		for fieldIdx := 0; fieldIdx < md.Fields().Len(); fieldIdx++ {
			fd := md.Fields().Get(fieldIdx)
			if fd.IsList() || fd.IsMap() {
				continue
			}
			if !isLeaf(fd) {
				if err := walkFields(fd.Message()); err != nil {
					return err
				}
				continue
			}
			flagName := string(fd.Name())
			if _, exists := flagSet[flagName]; exists {
				return fmt.Errorf("duplicate flag name '%s' in config: %s", flagName, fd.FullName())
			}
			flagSet[flagName] = struct{}{}
		}
		return nil
	}
	if err := walkFields(md); err != nil {
		return nil, err
	}
	return flagSet, nil
}

// CollectUnregisteredFlags collects all flags that have no entry in the config schema.
// An error exists in the results corresponding to each unregistered flag.
func CollectUnregisteredFlags() []error {
	md, err := configDescriptor()
	if err != nil {
		return []error{err}
	}
	definedFlags, err := getDefinedFlags(md)
	if err != nil {
		return []error{err}
	}
	errs := make([]error, 0)
	flag.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") { // Skip test flags.
			return
		}
		if slices.Contains(skippedProtobufFlags, f.Name) {
			return
		}
		if _, flagHasConfigEntry := definedFlags[f.Name]; !flagHasConfigEntry {
			errs = append(errs, fmt.Errorf("flag '%s' has not been defined in protobuf config", f.Name))
		}
	})
	return errs
}
