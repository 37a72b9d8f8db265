// Package encoder serializes transformed records as tf.Example protocol
// buffers framed in gzip-compressed TFRecord files.
package encoder

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"featurepipe/internal/transformer"
)

// Field numbers of tensorflow/core/example/{example,feature}.proto.
const (
	exampleFeatures  protowire.Number = 1 // Example.features
	featuresFeature  protowire.Number = 1 // Features.feature (map)
	mapKey           protowire.Number = 1
	mapValue         protowire.Number = 2
	featureBytesList protowire.Number = 1
	featureFloatList protowire.Number = 2
	featureInt64List protowire.Number = 3
	listValue        protowire.Number = 1
)

// Encode returns the tf.Example encoding of r. Map entries are written in
// sorted key order so equal records always encode to equal bytes.
func Encode(r transformer.Record) []byte {
	var features []byte
	for _, k := range r.Keys() {
		entry := protowire.AppendTag(nil, mapKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, encodeFeature(r[k]))

		features = protowire.AppendTag(features, featuresFeature, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}
	out := protowire.AppendTag(nil, exampleFeatures, protowire.BytesType)
	return protowire.AppendBytes(out, features)
}

func encodeFeature(v transformer.Value) []byte {
	var list []byte
	var field protowire.Number
	switch v.Kind {
	case transformer.KindFloat:
		field = featureFloatList
		packed := protowire.AppendFixed32(nil, math.Float32bits(float32(v.Float)))
		list = protowire.AppendTag(nil, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	case transformer.KindInt:
		field = featureInt64List
		packed := protowire.AppendVarint(nil, uint64(v.Int))
		list = protowire.AppendTag(nil, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	default:
		field = featureBytesList
		list = protowire.AppendTag(nil, listValue, protowire.BytesType)
		list = protowire.AppendString(list, v.Bytes)
	}
	out := protowire.AppendTag(nil, field, protowire.BytesType)
	return protowire.AppendBytes(out, list)
}

// Decode parses a tf.Example produced by Encode. Only single-valued lists are
// understood.
func Decode(b []byte) (transformer.Record, error) {
	features, err := consumeField(b, exampleFeatures)
	if err != nil {
		return nil, fmt.Errorf("encoder: example: %w", err)
	}
	out := transformer.Record{}
	for len(features) > 0 {
		num, typ, n := protowire.ConsumeTag(features)
		if n < 0 || num != featuresFeature || typ != protowire.BytesType {
			return nil, fmt.Errorf("encoder: features: bad tag")
		}
		features = features[n:]
		entry, n := protowire.ConsumeBytes(features)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		features = features[n:]

		key, err := consumeField(entry, mapKey)
		if err != nil {
			return nil, fmt.Errorf("encoder: map key: %w", err)
		}
		val, err := consumeField(skipField(entry), mapValue)
		if err != nil {
			return nil, fmt.Errorf("encoder: map value %q: %w", key, err)
		}
		v, err := decodeFeature(val)
		if err != nil {
			return nil, fmt.Errorf("encoder: feature %q: %w", key, err)
		}
		out[string(key)] = v
	}
	return out, nil
}

func decodeFeature(b []byte) (transformer.Value, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 || typ != protowire.BytesType {
		return transformer.Value{}, fmt.Errorf("bad tag")
	}
	list, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return transformer.Value{}, protowire.ParseError(m)
	}
	payload, err := consumeField(list, listValue)
	if err != nil {
		return transformer.Value{}, err
	}
	switch num {
	case featureFloatList:
		bits, k := protowire.ConsumeFixed32(payload)
		if k < 0 {
			return transformer.Value{}, protowire.ParseError(k)
		}
		return transformer.Value{Kind: transformer.KindFloat, Float: float64(math.Float32frombits(bits))}, nil
	case featureInt64List:
		x, k := protowire.ConsumeVarint(payload)
		if k < 0 {
			return transformer.Value{}, protowire.ParseError(k)
		}
		return transformer.Value{Kind: transformer.KindInt, Int: int64(x)}, nil
	case featureBytesList:
		return transformer.Value{Kind: transformer.KindBytes, Bytes: string(payload)}, nil
	}
	return transformer.Value{}, fmt.Errorf("unknown list field %d", num)
}

// consumeField reads one length-delimited field numbered want from the start
// of b and returns its payload.
func consumeField(b []byte, want protowire.Number) ([]byte, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	if num != want || typ != protowire.BytesType {
		return nil, fmt.Errorf("field %d: unexpected field %d", want, num)
	}
	v, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return nil, protowire.ParseError(m)
	}
	return v, nil
}

// skipField returns b without its first field.
func skipField(b []byte) []byte {
	_, _, n := protowire.ConsumeField(b)
	if n < 0 {
		return nil
	}
	return b[n:]
}
