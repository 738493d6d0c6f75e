package dynamodb

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/metadata"
)

const (
	attrPK      = "pk"
	attrSK      = "sk"
	attrSeq     = "seq"
	attrVec     = "vec"
	attrMeta    = "md"
	attrDim     = "dim"
	attrNextSeq = "next_seq"

	metaSuffix = "#meta"
	metaSK     = "meta"
)

var errMalformedItem = fmt.Errorf("%w: malformed item", vecstore.ErrOperation)

// record is one decoded item.
type record struct {
	id  string
	seq int64
	vec []float32
	doc metadata.Document
}

func stringValue(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, bool) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("%w: missing number %q", errMalformedItem, name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", errMalformedItem, name, err)
	}
	return n, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: vector of %d bytes", errMalformedItem, len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

func (s *Store) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: stringValue(s.namespace),
		attrSK: stringValue(id),
	}
}

func (s *Store) metaKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: stringValue(s.namespace + metaSuffix),
		attrSK: stringValue(metaSK),
	}
}

func (s *Store) encode(r *record) (map[string]types.AttributeValue, error) {
	item := s.key(r.id)
	item[attrSeq] = numberValue(r.seq)
	item[attrVec] = &types.AttributeValueMemberB{Value: encodeVector(r.vec)}
	if len(r.doc) > 0 {
		data, err := s.codec.Marshal(r.doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vecstore.ErrInvalidMetadata, err)
		}
		item[attrMeta] = stringValue(string(data))
	}
	return item, nil
}

func (s *Store) decode(item map[string]types.AttributeValue) (*record, error) {
	id, ok := stringAttr(item, attrSK)
	if !ok {
		return nil, fmt.Errorf("%w: missing id", errMalformedItem)
	}
	seq, err := numberAttr(item, attrSeq)
	if err != nil {
		return nil, err
	}
	raw, ok := item[attrVec].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no vector", errMalformedItem, id)
	}
	vec, err := decodeVector(raw.Value)
	if err != nil {
		return nil, err
	}

	r := &record{id: id, seq: seq, vec: vec}
	if md, ok := stringAttr(item, attrMeta); ok {
		if err := s.codec.Unmarshal([]byte(md), &r.doc); err != nil {
			return nil, fmt.Errorf("%w: %q metadata: %w", errMalformedItem, id, err)
		}
	}
	return r, nil
}
