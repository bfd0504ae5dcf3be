package config

import (
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/durationpb" // Registers google/protobuf/duration.proto.
)

const configMessageName = "Config"

// scalarField describes a leaf field of the config schema. Leaf names are the flag names they set.
func scalarField(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     kind.Enum(),
	}
}

// messageField describes a field holding a message of the given fully-qualified type, e.g. ".objcache.config.Cache".
func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	field := scalarField(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	field.TypeName = proto.String(typeName)
	return field
}

// configFileProto is the schema of the .txtpb config file. Nested messages only group flags together.
func configFileProto() *descriptorpb.FileDescriptorProto {
	const (
		str      = descriptorpb.FieldDescriptorProto_TYPE_STRING
		boolean  = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		int64Typ = descriptorpb.FieldDescriptorProto_TYPE_INT64
		int32Typ = descriptorpb.FieldDescriptorProto_TYPE_INT32
	)
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("objcache/config.proto"),
		Package:    proto.String("objcache.config"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/duration.proto"},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String(configMessageName),
				Field: []*descriptorpb.FieldDescriptorProto{
					messageField("logging", 1, ".objcache.config.Logging"),
					messageField("server", 2, ".objcache.config.Server"),
					messageField("cache", 3, ".objcache.config.Cache"),
				},
			},
			{
				Name: proto.String("Logging"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("log_handler_type", 1, str),
					scalarField("log_level", 2, str),
					scalarField("log_add_source", 3, boolean),
				},
			},
			{
				Name: proto.String("Server"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("address", 1, str),
				},
			},
			{
				Name: proto.String("Cache"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("cache_layer", 1, str),
					scalarField("cache_capacity", 2, int64Typ),
					scalarField("cache_shard_count", 3, int32Typ),
					messageField("cache_tick_interval", 4, ".google.protobuf.Duration"),
				},
			},
		},
	}
}

// configDescriptor resolves the config schema once against the global registry.
var configDescriptor = sync.OnceValues(func() (protoreflect.MessageDescriptor, error) {
	file, err := protodesc.NewFile(configFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		return nil, err
	}
	return file.Messages().ByName(configMessageName), nil
})
